package ipp

import (
	"context"
	"errors"
	"io"
	"testing"

	goipp "github.com/phin1x/go-ipp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/printops/labelpress/internal/label"
)

type fakeCUPS struct {
	jobID    int
	printErr error
	listErr  error
	queues   map[string]goipp.Attributes

	gotDoc   goipp.Document
	gotQueue string
	gotBody  []byte
}

func (f *fakeCUPS) PrintJob(doc goipp.Document, printer string, _ map[string]interface{}) (int, error) {
	f.gotDoc = doc
	f.gotQueue = printer
	body, err := io.ReadAll(doc.Document)
	if err != nil {
		return 0, err
	}
	f.gotBody = body
	if f.printErr != nil {
		return 0, f.printErr
	}
	return f.jobID, nil
}

func (f *fakeCUPS) GetPrinters(_ []string) (map[string]goipp.Attributes, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.queues, nil
}

func testWire() label.WireLabel {
	zpl := "^XA\n^FO0,0\n^GFA,4,4,1,00000000\n^FS\n^XZ\n"
	return label.WireLabel{
		ZPL:         zpl,
		Encoding:    label.EncodingASCII,
		Width:       8,
		Height:      4,
		BytesPerRow: 1,
		TotalBytes:  4,
	}
}

func TestSubmitSendsRawZPL(t *testing.T) {
	t.Parallel()

	fake := &fakeCUPS{jobID: 42}
	d := &Dispatcher{client: fake, logger: zap.NewNop()}
	wire := testWire()

	receipt, err := d.Submit(context.Background(), wire, "zebra")

	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Equal(t, 42, receipt.JobID)
	require.Equal(t, "zebra", receipt.Printer)
	require.Equal(t, Backend, receipt.Backend)

	require.Equal(t, "zebra", fake.gotQueue)
	require.Equal(t, wire.ZPL, string(fake.gotBody))
	require.Equal(t, len(wire.ZPL), fake.gotDoc.Size)
	require.Equal(t, goipp.MimeTypeOctetStream, fake.gotDoc.MimeType)
	require.Equal(t, documentName, fake.gotDoc.Name)
}

func TestSubmitRequiresPrinter(t *testing.T) {
	t.Parallel()

	d := &Dispatcher{client: &fakeCUPS{}, logger: zap.NewNop()}

	receipt, err := d.Submit(context.Background(), testWire(), "")

	require.ErrorIs(t, err, label.ErrNoPrinter)
	require.False(t, receipt.Success)
}

func TestSubmitWrapsDispatchErrors(t *testing.T) {
	t.Parallel()

	fake := &fakeCUPS{printErr: errors.New("server-error-busy")}
	d := &Dispatcher{client: fake, logger: zap.NewNop()}

	receipt, err := d.Submit(context.Background(), testWire(), "zebra")

	require.ErrorIs(t, err, label.ErrDispatch)
	require.False(t, receipt.Success)
	require.Contains(t, receipt.Error, "server-error-busy")
}

func TestSubmitHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	fake := &fakeCUPS{jobID: 1}
	d := &Dispatcher{client: fake, logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Submit(ctx, testWire(), "zebra")

	require.Error(t, err)
	require.Empty(t, fake.gotQueue)
}

func TestPrintersMapsAttributes(t *testing.T) {
	t.Parallel()

	fake := &fakeCUPS{queues: map[string]goipp.Attributes{
		"zebra-b": {
			"printer-info":          []goipp.Attribute{{Value: "Shipping dock"}},
			"printer-state":         []goipp.Attribute{{Value: 4}},
			"printer-uri-supported": []goipp.Attribute{{Value: "ipp://cups/printers/zebra-b"}},
		},
		"zebra-a": {
			"printer-info":  []goipp.Attribute{{Value: "Front desk"}},
			"printer-state": []goipp.Attribute{{Value: 3}},
		},
	}}
	d := &Dispatcher{client: fake, logger: zap.NewNop()}

	printers, err := d.Printers(context.Background())

	require.NoError(t, err)
	require.Len(t, printers, 2)
	require.Equal(t, "zebra-a", printers[0].Name)
	require.Equal(t, "Front desk", printers[0].Info)
	require.Equal(t, 3, printers[0].State)
	require.Empty(t, printers[0].URI)
	require.Equal(t, "zebra-b", printers[1].Name)
	require.Equal(t, 4, printers[1].State)
	require.Equal(t, "ipp://cups/printers/zebra-b", printers[1].URI)
}

func TestPrintersPropagatesErrors(t *testing.T) {
	t.Parallel()

	d := &Dispatcher{client: &fakeCUPS{listErr: errors.New("connection refused")}, logger: zap.NewNop()}

	_, err := d.Printers(context.Background())

	require.Error(t, err)
	require.Contains(t, err.Error(), "list printers")
}

func TestNewBuildsClient(t *testing.T) {
	t.Parallel()

	d := New(Config{}, nil)
	require.NotNil(t, d.client)
	require.NotNil(t, d.logger)
}
