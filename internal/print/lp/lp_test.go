package lp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/label"
)

type fakeRunner struct {
	out []byte
	err error

	calls       int
	sawDeadline bool
	gotEnv      []string
	gotStdin    []byte
	gotName     string
	gotArgs     []string
}

func (f *fakeRunner) run(ctx context.Context, env []string, stdin []byte, name string, args ...string) ([]byte, error) {
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	f.gotEnv = env
	f.gotStdin = stdin
	f.gotName = name
	f.gotArgs = args
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func newDispatcher(cfg Config, fake *fakeRunner) *Dispatcher {
	d := New(cfg, zap.NewNop())
	d.run = fake.run
	return d
}

func testWire() label.WireLabel {
	return label.WireLabel{
		ZPL:         "^XA\n^FO0,0\n^GFA,4,4,1,FFFFFFFF\n^FS\n^XZ\n",
		Encoding:    label.EncodingASCII,
		Width:       8,
		Height:      4,
		BytesPerRow: 1,
		TotalBytes:  4,
	}
}

func TestSubmitPipesRawJobIntoLP(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{out: []byte("request id is zebra-17 (1 file(s))\n")}
	d := newDispatcher(Config{}, fake)
	wire := testWire()

	receipt, err := d.Submit(context.Background(), wire, "zebra")

	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Equal(t, 17, receipt.JobID)
	require.Equal(t, Backend, receipt.Backend)

	require.Equal(t, "lp", fake.gotName)
	require.Equal(t, []string{"-d", "zebra", "-o", "raw"}, fake.gotArgs)
	require.Equal(t, wire.ZPL, string(fake.gotStdin))
	require.True(t, fake.sawDeadline)
	require.Empty(t, fake.gotEnv)
}

func TestSubmitRequiresPrinter(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{}
	d := newDispatcher(Config{}, fake)

	_, err := d.Submit(context.Background(), testWire(), "")

	require.ErrorIs(t, err, label.ErrNoPrinter)
	require.Zero(t, fake.calls)
}

func TestSubmitWrapsSpoolerErrors(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{err: errors.New("lp: The printer or class does not exist.")}
	d := newDispatcher(Config{}, fake)

	receipt, err := d.Submit(context.Background(), testWire(), "ghost")

	require.ErrorIs(t, err, label.ErrDispatch)
	require.False(t, receipt.Success)
	require.Contains(t, receipt.Error, "does not exist")
}

func TestSubmitToleratesUnparseableConfirmation(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{out: []byte("job queued\n")}
	d := newDispatcher(Config{}, fake)

	receipt, err := d.Submit(context.Background(), testWire(), "zebra")

	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Zero(t, receipt.JobID)
}

func TestSubmitSetsCUPSServer(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{out: []byte("request id is zebra-1 (1 file(s))\n")}
	d := newDispatcher(Config{Server: "cups.internal"}, fake)

	_, err := d.Submit(context.Background(), testWire(), "zebra")

	require.NoError(t, err)
	require.Equal(t, []string{"CUPS_SERVER=cups.internal"}, fake.gotEnv)
}

func TestPrintersParsesLpstat(t *testing.T) {
	t.Parallel()

	out := "printer zebra is idle.  enabled since Tue 12 Aug 2025\n" +
		"printer office now printing office-3.  enabled since Tue 12 Aug 2025\n" +
		"printer broken disabled since Tue 12 Aug 2025 -\n" +
		"\treason unknown\n"
	fake := &fakeRunner{out: []byte(out)}
	d := newDispatcher(Config{}, fake)

	printers, err := d.Printers(context.Background())

	require.NoError(t, err)
	require.Equal(t, "lpstat", fake.gotName)
	require.Equal(t, []string{"-p"}, fake.gotArgs)
	require.Len(t, printers, 3)

	require.Equal(t, "broken", printers[0].Name)
	require.Equal(t, stateStopped, printers[0].State)
	require.Equal(t, "office", printers[1].Name)
	require.Equal(t, stateProcessing, printers[1].State)
	require.Equal(t, "zebra", printers[2].Name)
	require.Equal(t, stateIdle, printers[2].State)
}

func TestPrintersPropagatesErrors(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{err: errors.New("lpstat: Bad file descriptor")}
	d := newDispatcher(Config{}, fake)

	_, err := d.Printers(context.Background())

	require.Error(t, err)
	require.Contains(t, err.Error(), "lpstat")
}

func TestParseJobID(t *testing.T) {
	t.Parallel()

	require.Equal(t, 42, parseJobID("request id is shipping-zebra-42 (1 file(s))"))
	require.Equal(t, 7, parseJobID("request id is z-7 (1 file(s))"))
	require.Zero(t, parseJobID("no identifier here"))
}
