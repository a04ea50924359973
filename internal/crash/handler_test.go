package crash

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deskshell/deskshell/internal/logging"
)

type stubDialog struct {
	response   Response
	gotMessage string
	gotReport  string
}

func (d *stubDialog) ShowCriticalError(message, reportPath string) (Response, error) {
	d.gotMessage = message
	d.gotReport = reportPath
	return d.response, nil
}

func TestHandleUncaughtWritesReport(t *testing.T) {
	dir := t.TempDir()
	dialog := &stubDialog{response: Response("dismiss")}
	h := NewHandler(dir, dialog, func() error { return nil }, func(string) error { return nil }, logging.NewNop())

	h.HandleUncaught(errors.New("boom"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one crash report, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "uncaughtException-") {
		t.Errorf("unexpected report name %q", entries[0].Name())
	}

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	report := string(raw)
	if !strings.Contains(report, "boom") {
		t.Error("report should contain the error message")
	}
	if !strings.Contains(report, "Stack:") {
		t.Error("report should contain a stack trace")
	}

	if dialog.gotMessage != "boom" {
		t.Errorf("dialog message = %q", dialog.gotMessage)
	}
	if dialog.gotReport == "" {
		t.Error("dialog should receive the report path")
	}
}

func TestReopenRelaunches(t *testing.T) {
	relaunched := false
	viewed := false
	h := NewHandler(t.TempDir(), &stubDialog{response: ResponseReopen},
		func() error { relaunched = true; return nil },
		func(string) error { viewed = true; return nil },
		logging.NewNop())

	h.HandleUncaught(errors.New("boom"))

	if !relaunched {
		t.Error("Reopen must relaunch the process")
	}
	if viewed {
		t.Error("Reopen must not spawn the viewer")
	}
}

func TestShowDetailsSpawnsViewer(t *testing.T) {
	var viewedPath string
	h := NewHandler(t.TempDir(), &stubDialog{response: ResponseShowDetails},
		func() error { t.Error("Show details must not relaunch"); return nil },
		func(path string) error { viewedPath = path; return nil },
		logging.NewNop())

	h.HandleUncaught(errors.New("boom"))

	if viewedPath == "" {
		t.Fatal("Show details must spawn the viewer with the report path")
	}
	if _, err := os.Stat(viewedPath); err != nil {
		t.Errorf("viewer received a non-existent path: %v", err)
	}
}

func TestNilDialogOnlyWritesReport(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil,
		func() error { t.Error("must not relaunch without a dialog"); return nil },
		func(string) error { t.Error("must not view without a dialog"); return nil },
		logging.NewNop())

	h.HandleUncaught(errors.New("boom"))

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Error("report should still be written without a dialog")
	}
}
