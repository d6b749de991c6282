package syncer

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
)

// StepStatus is the lifecycle of one initialization step.
type StepStatus string

const (
	StepStarting StepStatus = "starting"
	StepSuccess  StepStatus = "success"
	StepError    StepStatus = "error"
)

// StepReporter receives progress events during startup initialization so
// a login screen can show what the terminal is doing. Nil is fine.
type StepReporter func(step string, status StepStatus, details string)

// ProfileInitializer is the session hook run as the final startup step.
type ProfileInitializer interface {
	InitializePOSData(ctx context.Context, profileName string) error
}

// InitOptions tunes startup initialization.
type InitOptions struct {
	SyncOnStartup bool
	ProfileName   string
	Profiles      ProfileInitializer
	Report        StepReporter
}

// InitReport summarizes a startup initialization run. Failed is nil even
// when sync or the census failed: only unusable local storage makes the
// run itself fail.
type InitReport struct {
	Offline     bool           `json:"offline"`
	SyncResult  *Result        `json:"sync_result,omitempty"`
	Census      map[string]int `json:"census,omitempty"`
	Failed      error          `json:"-"`
	SoftErrors  error          `json:"-"`
	SoftDetails string         `json:"soft_errors,omitempty"`
}

// InitializeDatabase prepares the terminal for a shift: connection test,
// optional catch-up sync, index creation, a diagnostic document census,
// and profile initialization. It is idempotent and safe to run on every
// startup. Sync failure degrades to offline mode and never blocks login;
// the run fails only when local storage itself is unusable.
func (s *Syncer) InitializeDatabase(ctx context.Context, opts InitOptions) *InitReport {
	report := &InitReport{}
	emit := func(step string, status StepStatus, details string) {
		if opts.Report != nil {
			opts.Report(step, status, details)
		}
		if s.logg != nil {
			lctx := s.logg.WithFields(ctx, map[string]any{
				"step":   step,
				"status": string(status),
			})
			if details != "" {
				lctx = s.logg.WithField(lctx, "details", details)
			}
			if status == StepError {
				s.logg.Warn(lctx, "terminal init step failed")
			} else {
				s.logg.Info(lctx, "terminal init step")
			}
		}
	}

	emit("connection_test", StepStarting, "")
	localOK, remoteOK := s.TestConnection(ctx)
	if !localOK {
		err := fmt.Errorf("local document store unavailable")
		emit("connection_test", StepError, err.Error())
		report.Failed = err
		return report
	}
	report.Offline = !remoteOK
	if remoteOK {
		emit("connection_test", StepSuccess, "local and remote reachable")
	} else {
		emit("connection_test", StepSuccess, "remote unreachable: continuing in offline mode")
	}

	if opts.SyncOnStartup && remoteOK {
		emit("initial_sync", StepStarting, "")
		result := s.PerformSync(ctx, enums.SyncDirectionBoth)
		if !result.Success {
			// The direct path failed; retry once on an independent
			// background path so a slow remote cannot hold up login.
			emit("initial_sync", StepError, result.Error+"; retrying in background")
			report.SoftErrors = multierr.Append(report.SoftErrors, result.Err)
			go func() {
				bg := s.PerformSync(context.Background(), enums.SyncDirectionBoth)
				if s.logg == nil {
					return
				}
				if bg.Success {
					s.logg.Info(context.Background(), "background startup sync recovered")
				} else {
					s.logg.Warn(context.Background(), "background startup sync failed")
				}
			}()
		} else {
			emit("initial_sync", StepSuccess,
				fmt.Sprintf("read %d, wrote %d", result.DocsRead, result.DocsWritten))
		}
		report.SyncResult = &result
	} else {
		emit("initial_sync", StepSuccess, "skipped")
	}

	emit("ensure_indexes", StepStarting, "")
	if err := s.local.EnsureIndexes(ctx); err != nil {
		emit("ensure_indexes", StepError, err.Error())
		report.Failed = err
		return report
	}
	emit("ensure_indexes", StepSuccess, "")

	emit("document_census", StepStarting, "")
	census, err := s.census(ctx)
	if err != nil {
		// Observability only: a failed census never fails startup.
		emit("document_census", StepError, err.Error())
		report.SoftErrors = multierr.Append(report.SoftErrors, err)
	} else {
		report.Census = census
		emit("document_census", StepSuccess, fmt.Sprintf("%d document types counted", len(census)))
	}

	if opts.Profiles != nil {
		emit("profile_init", StepStarting, "")
		if err := opts.Profiles.InitializePOSData(ctx, opts.ProfileName); err != nil {
			emit("profile_init", StepError, err.Error())
			report.SoftErrors = multierr.Append(report.SoftErrors, err)
		} else {
			emit("profile_init", StepSuccess, "")
		}
	}

	if report.SoftErrors != nil {
		report.SoftDetails = report.SoftErrors.Error()
	}
	return report
}

// census counts live documents per type for the startup diagnostics.
func (s *Syncer) census(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(enums.AllDocTypes()))
	for _, docType := range enums.AllDocTypes() {
		docs, err := s.local.Find(ctx, docstore.Selector{Type: docType})
		if err != nil {
			return nil, err
		}
		counts[docType.String()] = len(docs)
	}
	return counts, nil
}
