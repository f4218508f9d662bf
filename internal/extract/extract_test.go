package extract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/label"
)

type fakeDetector struct {
	reply string
	err   error
	calls int
}

func (f *fakeDetector) Locate(_ context.Context, _ *image.RGBA) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func whiteFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func requireDark(t *testing.T, img *image.RGBA, x, y int) {
	t.Helper()
	r, g, b, _ := img.At(x, y).RGBA()
	require.Zero(t, r+g+b, "pixel (%d,%d) should be dark", x, y)
}

func requireLight(t *testing.T, img *image.RGBA, x, y int) {
	t.Helper()
	r, _, _, _ := img.At(x, y).RGBA()
	require.EqualValues(t, 0xFFFF, r, "pixel (%d,%d) should be white", x, y)
}

func TestExtractCropsPercentageBox(t *testing.T) {
	t.Parallel()

	frame := whiteFrame(1000, 1000)
	frame.SetRGBA(300, 300, color.RGBA{A: 255})
	det := &fakeDetector{reply: `Sure, here it is: {"x1_pct": 5, "y1_pct": 10, "x2_pct": 55, "y2_pct": 60} done.`}
	ex := New(det, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, false)

	require.True(t, ext.Cropped())
	require.Equal(t, 1, det.calls)
	require.Equal(t, 500, ext.Frame.Bounds().Dx())
	require.Equal(t, 500, ext.Frame.Bounds().Dy())
	require.Equal(t, image.Point{}, ext.Frame.Bounds().Min)

	// Source (300,300) lands at (250,200) inside the (50,100)-(550,600) crop.
	requireDark(t, ext.Frame, 250, 200)
	requireLight(t, ext.Frame, 0, 0)
}

func TestExtractCropsPixelBox(t *testing.T) {
	t.Parallel()

	frame := whiteFrame(1000, 1000)
	det := &fakeDetector{reply: `{"x1": 100, "y1": 100, "x2": 600, "y2": 600}`}
	ex := New(det, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, true)

	require.Equal(t, label.ExtractionCropped, ext.Outcome)
	require.Equal(t, 500, ext.Frame.Bounds().Dx())
	require.Equal(t, 500, ext.Frame.Bounds().Dy())
}

func TestExtractSnapsToGrid(t *testing.T) {
	t.Parallel()

	frame := whiteFrame(1000, 1000)
	det := &fakeDetector{reply: `{"x1": 104, "y1": 107, "x2": 598, "y2": 593}`}
	ex := New(det, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, true)

	// Min corner floors to (100,100), max corner ceils to (600,600).
	require.True(t, ext.Cropped())
	require.Equal(t, 500, ext.Frame.Bounds().Dx())
	require.Equal(t, 500, ext.Frame.Bounds().Dy())
}

func TestExtractPrefersPercentageKeys(t *testing.T) {
	t.Parallel()

	frame := whiteFrame(1000, 1000)
	det := &fakeDetector{reply: `{"x1_pct":0,"y1_pct":0,"x2_pct":50,"y2_pct":50,"x1":0,"y1":0,"x2":200,"y2":200}`}
	ex := New(det, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, true)

	// The pixel keys alone would describe a 4% box and be rejected.
	require.True(t, ext.Cropped())
	require.Equal(t, 500, ext.Frame.Bounds().Dx())
}

func TestExtractNoLabelReplies(t *testing.T) {
	t.Parallel()

	for _, reply := range []string{
		`{"no_label": true}`,
		`Nothing shippable here: {"found": false}`,
	} {
		det := &fakeDetector{reply: reply}
		ex := New(det, Config{}, zap.NewNop())

		strict := ex.Extract(context.Background(), whiteFrame(1000, 1000), true)
		require.Equal(t, label.ExtractionNoLabel, strict.Outcome, "reply %q", reply)
		require.Nil(t, strict.Frame)
		require.NotEmpty(t, strict.Reason)

		frame := whiteFrame(1000, 1000)
		loose := ex.Extract(context.Background(), frame, false)
		require.Equal(t, label.ExtractionFullFrame, loose.Outcome, "reply %q", reply)
		require.Same(t, frame, loose.Frame)
	}
}

func TestExtractParseFailuresStrict(t *testing.T) {
	t.Parallel()

	for _, reply := range []string{
		"the label is probably near the top left",
		`{"x1": 10, "y1": 10}`,
		`{"x1_pct": 5, "y2_pct": 60}`,
		`{broken json`,
	} {
		det := &fakeDetector{reply: reply}
		ex := New(det, Config{}, zap.NewNop())

		ext := ex.Extract(context.Background(), whiteFrame(1000, 1000), true)
		require.Equal(t, label.ExtractionFailed, ext.Outcome, "reply %q", reply)
		require.Nil(t, ext.Frame)
	}
}

func TestExtractDetectorErrorStrict(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{err: errors.New("api unavailable")}
	ex := New(det, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), whiteFrame(1000, 1000), true)

	require.Equal(t, label.ExtractionFailed, ext.Outcome)
	require.Contains(t, ext.Reason, "detector")
}

func TestExtractRejectsBadGeometry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		reply  string
		reason string
	}{
		{"inverted", `{"x1":500,"y1":500,"x2":100,"y2":100}`, "inverted"},
		{"out of bounds", `{"x1":-20,"y1":0,"x2":500,"y2":500}`, "outside"},
		{"too small", `{"x1":0,"y1":0,"x2":100,"y2":100}`, "minimum"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ex := New(&fakeDetector{reply: tc.reply}, Config{}, zap.NewNop())
			ext := ex.Extract(context.Background(), whiteFrame(1000, 1000), true)

			require.Equal(t, label.ExtractionNoLabel, ext.Outcome)
			require.Contains(t, ext.Reason, tc.reason)
		})
	}
}

func TestExtractClampsOverhangWithinTolerance(t *testing.T) {
	t.Parallel()

	// 1008 snaps up to 1010, still inside the 5px tolerance of a 1008-wide
	// frame, and then clamps back to the frame edge.
	frame := whiteFrame(1008, 1000)
	det := &fakeDetector{reply: `{"x1":0,"y1":0,"x2":1008,"y2":500}`}
	ex := New(det, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, true)

	require.True(t, ext.Cropped())
	require.Equal(t, 1008, ext.Frame.Bounds().Dx())
	require.Equal(t, 500, ext.Frame.Bounds().Dy())
}

func TestExtractFullFrameWhenBoxCoversPage(t *testing.T) {
	t.Parallel()

	for _, strict := range []bool{true, false} {
		frame := whiteFrame(1000, 1000)
		det := &fakeDetector{reply: `{"x1":0,"y1":0,"x2":1000,"y2":950}`}
		ex := New(det, Config{}, zap.NewNop())

		ext := ex.Extract(context.Background(), frame, strict)

		require.Equal(t, label.ExtractionFullFrame, ext.Outcome, "strict=%v", strict)
		require.Same(t, frame, ext.Frame)
		require.Contains(t, ext.Reason, "no meaningful crop")
	}
}

func TestExtractLetterHeuristicPortrait(t *testing.T) {
	t.Parallel()

	frame := whiteFrame(850, 1100)
	det := &fakeDetector{err: errors.New("offline")}
	ex := New(det, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, false)

	require.True(t, ext.Cropped())
	require.Contains(t, ext.Reason, "letter-size heuristic")
	require.Equal(t, 425, ext.Frame.Bounds().Dx())
	require.Equal(t, 638, ext.Frame.Bounds().Dy())
}

func TestExtractLetterHeuristicLandscape(t *testing.T) {
	t.Parallel()

	frame := whiteFrame(1100, 850)
	ex := New(&fakeDetector{reply: "nonsense"}, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, false)

	require.True(t, ext.Cropped())
	require.Equal(t, 627, ext.Frame.Bounds().Dx())
	require.Equal(t, 824, ext.Frame.Bounds().Dy())
}

func TestExtractFallbackSkipsNonLetterPages(t *testing.T) {
	t.Parallel()

	frame := whiteFrame(1000, 1000)
	ex := New(&fakeDetector{err: errors.New("offline")}, Config{}, zap.NewNop())

	ext := ex.Extract(context.Background(), frame, false)

	require.Equal(t, label.ExtractionFullFrame, ext.Outcome)
	require.Same(t, frame, ext.Frame)
	require.NotEmpty(t, ext.Reason)
}

func TestExtractWithoutDetector(t *testing.T) {
	t.Parallel()

	ex := New(nil, Config{}, nil)

	strict := ex.Extract(context.Background(), whiteFrame(1000, 1000), true)
	require.Equal(t, label.ExtractionNoLabel, strict.Outcome)
	require.Contains(t, strict.Reason, "no detector")

	square := whiteFrame(1000, 1000)
	loose := ex.Extract(context.Background(), square, false)
	require.Equal(t, label.ExtractionFullFrame, loose.Outcome)
	require.Same(t, square, loose.Frame)

	letter := ex.Extract(context.Background(), whiteFrame(850, 1100), false)
	require.True(t, letter.Cropped())
}

func TestExtractNonStrictAlwaysYieldsFrame(t *testing.T) {
	t.Parallel()

	detectors := []*fakeDetector{
		{err: errors.New("timeout")},
		{reply: "no json at all"},
		{reply: `{"x1":900,"y1":900,"x2":100,"y2":100}`},
		{reply: `{"found": false}`},
	}
	for _, det := range detectors {
		ex := New(det, Config{}, zap.NewNop())
		ext := ex.Extract(context.Background(), whiteFrame(1000, 1000), false)

		require.NotNil(t, ext.Frame)
		require.NotEqual(t, label.ExtractionFailed, ext.Outcome)
		require.NotEqual(t, label.ExtractionNoLabel, ext.Outcome)
	}
}

func TestExtractHonorsConfigOverrides(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{reply: `{"x1":0,"y1":0,"x2":200,"y2":100}`}
	ex := New(det, Config{SnapPx: 1, MinAreaPct: 1}, zap.NewNop())

	ext := ex.Extract(context.Background(), whiteFrame(1000, 1000), true)

	// A 2% box is rejected under the defaults but allowed at MinAreaPct 1.
	require.True(t, ext.Cropped())
	require.Equal(t, 200, ext.Frame.Bounds().Dx())
	require.Equal(t, 100, ext.Frame.Bounds().Dy())
}
