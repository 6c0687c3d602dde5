// internal/organism/selection.go
package organism

import (
	"context"

	"go.uber.org/zap"
)

// SelectFile ticks (select=true) or unticks a file's checkbox, opening its
// group first. A checkbox already in the requested state is left alone.
func (s *Session) SelectFile(ctx context.Context, loc FileLocation, selected bool) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.fail(s.selectFile(ctx, loc, selected))
}

func (s *Session) selectFile(ctx context.Context, loc FileLocation, selected bool) error {
	verb := "Select"
	if !selected {
		verb = "Unselect"
	}
	log := s.logger.With(zap.String("group", loc.Group), zap.String("file", loc.File))

	box, err := s.findFile(ctx, loc)
	if err != nil {
		return err
	}
	if box.Checked() == selected {
		// The box is right but the recorded expectation may not be.
		s.record(loc, selected)
		log.Debug(verb + " is a no-op, checkbox already in state.")
		return nil
	}
	if err := s.click(ctx, box, "file checkbox"); err != nil {
		return err
	}
	s.record(loc, selected)
	// Every click is sent to the portal; give it time to land before the next action.
	if err := s.poller.Sleep(ctx, s.opts.SettleTime); err != nil {
		return err
	}
	log.Info(verb+"ed file.", zap.Int("selected", len(s.selected)))
	return nil
}

// record keeps one entry per checkbox: any entry for loc's group and file is
// dropped whatever its expected outcome, then loc is added when selected.
func (s *Session) record(loc FileLocation, selected bool) {
	for l := range s.selected {
		if l.Group == loc.Group && l.File == loc.File {
			delete(s.selected, l)
		}
	}
	if selected {
		s.selected[loc] = struct{}{}
	}
}
