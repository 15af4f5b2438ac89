// Package archive preserves a rerun step's previous output in a versioned
// sibling folder before the step folder is reused.
package archive

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/fsutil"
	"github.com/aerox/simflow/internal/logging"
	"github.com/aerox/simflow/internal/models"
)

// TemplateStager stages an empty job folder as in a fresh run.
type TemplateStager interface {
	CopyTemplate(job *models.Job, name string) error
}

// Engine archives job folders. Iterator is the explicit ITERATOR parameter,
// empty when none was given.
type Engine struct {
	Iterator string
	Stager   TemplateStager
	logger   *logging.Logger
}

// NewEngine creates an archive engine.
func NewEngine(iterator string, stager TemplateStager, logger *logging.Logger) *Engine {
	return &Engine{Iterator: iterator, Stager: stager, logger: logger}
}

// Archive processes every job of p in order.
func (e *Engine) Archive(p *models.Project) error {
	for _, job := range p.Jobs {
		if err := e.ArchiveJob(job, p.Name); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveJob archives one job folder. An empty folder is staged with its
// templates instead. Sim-state files (.sim, .simh) are never moved.
func (e *Engine) ArchiveJob(job *models.Job, name string) error {
	entries, err := os.ReadDir(job.Path)
	if err != nil {
		return failure.State("cannot read job folder %s", job.Path).Wrap(err)
	}
	if len(entries) == 0 {
		e.logger.Info().Str("step", job.Step.String()).Str("path", job.Path).Msg("Empty job folder, staging templates")
		return e.Stager.CopyTemplate(job, name)
	}

	iterator := e.Iterator
	if iterator == "" {
		iterator = ImplicitIterator(job.Path, job.Software.Sim())
	}
	dst := job.Path + "-" + iterator
	reused := fsutil.Exists(dst)
	if !reused {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return failure.State("cannot create folder %s", dst).Wrap(err)
		}
	}
	e.logger.Info().Str("step", job.Step.String()).Str("path", dst).Bool("reused", reused).Msg("Archiving job folder")

	tracked := make(map[string]bool)
	for _, n := range job.Software.TrackedNames() {
		tracked[n] = true
	}

	for _, entry := range entries {
		src := filepath.Join(job.Path, entry.Name())
		target := filepath.Join(dst, entry.Name())

		switch {
		case entry.IsDir():
			err = e.move(src, target, reused)
		case IsSimState(entry.Name()):
			continue
		case tracked[entry.Name()]:
			err = e.copy(src, target, reused)
		default:
			err = e.move(src, target, reused)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// move archives src. When the archive folder was reused and already holds
// the name, src is left live.
func (e *Engine) move(src, dst string, reused bool) error {
	if reused && fsutil.Exists(dst) {
		e.logger.Debug().Str("path", src).Msg("Already archived, left in place")
		return nil
	}
	if err := fsutil.Move(src, dst); err != nil {
		return failure.State("cannot archive %s", src).Wrap(err)
	}
	e.logger.Debug().Str("src", src).Str("path", dst).Msg("Moved to archive")
	return nil
}

func (e *Engine) copy(src, dst string, reused bool) error {
	if _, err := fsutil.CopyFile(src, dst, fsutil.CopyOptions{IgnoreExisting: reused}); err != nil {
		return failure.State("cannot archive %s", src).Wrap(err)
	}
	e.logger.Debug().Str("src", src).Str("path", dst).Msg("Copied to archive")
	return nil
}

// ImplicitIterator derives the iterator when none was given: "0" while the
// <jobPath>-0 folder does not exist, otherwise the @-suffix of the sim file
// name ("0" when it has none).
func ImplicitIterator(jobPath, sim string) string {
	if !fsutil.Exists(jobPath + "-0") {
		return "0"
	}
	base := strings.TrimSuffix(filepath.Base(sim), filepath.Ext(sim))
	_, suffix, ok := strings.Cut(base, "@")
	if !ok || suffix == "" {
		return "0"
	}
	if i := strings.Index(suffix, "@"); i >= 0 {
		suffix = suffix[:i]
	}
	return suffix
}

// IsSimState reports whether name is a solver state file.
func IsSimState(name string) bool {
	return strings.HasSuffix(name, ".sim") || strings.HasSuffix(name, ".simh")
}
