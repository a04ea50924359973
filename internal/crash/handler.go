package crash

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/deskshell/deskshell/internal/logging"
)

// Response is the user's choice in the critical-error dialog.
type Response string

const (
	ResponseReopen      Response = "Reopen"
	ResponseShowDetails Response = "Show details"
)

// Dialog presents the critical-error dialog and returns the user's
// choice. The desktop shell backs this with a native message box.
type Dialog interface {
	ShowCriticalError(message, reportPath string) (Response, error)
}

// Handler deals with uncaught errors: it persists a crash report and
// drives the recovery dialog.
type Handler struct {
	reportDir string
	dialog    Dialog
	relaunch  func() error
	view      func(path string) error
	log       *logging.Logger
}

// NewHandler creates a crash handler writing reports under reportDir.
// Nil relaunch/view fall back to the process-level defaults.
func NewHandler(reportDir string, dialog Dialog, relaunch func() error, view func(path string) error, log *logging.Logger) *Handler {
	if relaunch == nil {
		relaunch = Relaunch
	}
	if view == nil {
		view = OpenViewer
	}
	return &Handler{
		reportDir: reportDir,
		dialog:    dialog,
		relaunch:  relaunch,
		view:      view,
		log:       log.Named("crash"),
	}
}

// HandleUncaught writes a crash report for err, shows the dialog, and
// honors the user's choice: Reopen relaunches the process, Show
// details spawns an external viewer on the report file.
func (h *Handler) HandleUncaught(err error) {
	reportPath, writeErr := h.writeReport(err)
	if writeErr != nil {
		h.log.Error("failed to write crash report", zap.Error(writeErr))
	}
	h.log.Error("uncaught error", zap.Error(err), zap.String("report", reportPath))

	if h.dialog == nil {
		return
	}
	response, dialogErr := h.dialog.ShowCriticalError(err.Error(), reportPath)
	if dialogErr != nil {
		h.log.Error("critical error dialog failed", zap.Error(dialogErr))
		return
	}

	switch response {
	case ResponseReopen:
		if relaunchErr := h.relaunch(); relaunchErr != nil {
			h.log.Error("relaunch failed", zap.Error(relaunchErr))
		}
	case ResponseShowDetails:
		if viewErr := h.view(reportPath); viewErr != nil {
			h.log.Error("failed to open crash report viewer", zap.Error(viewErr))
		}
	}
}

// writeReport persists the error and the current stack to a
// timestamped file and returns its path.
func (h *Handler) writeReport(err error) (string, error) {
	if mkErr := os.MkdirAll(h.reportDir, 0o700); mkErr != nil {
		return "", mkErr
	}
	name := fmt.Sprintf("uncaughtException-%s.txt", time.Now().Format("20060102-150405"))
	path := filepath.Join(h.reportDir, name)

	report := fmt.Sprintf("Time: %s\nError: %v\n\nStack:\n%s\n",
		time.Now().Format(time.RFC3339), err, debug.Stack())
	if writeErr := os.WriteFile(path, []byte(report), 0o600); writeErr != nil {
		return path, writeErr
	}
	return path, nil
}

// Relaunch starts a fresh copy of the current executable with the same
// arguments and exits.
func Relaunch() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}

// OpenViewer spawns the platform's default opener on the report file.
func OpenViewer(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}
