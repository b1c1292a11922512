// Package output renders participant-facing text.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/dkeye/Mesh/internal/adapters/storage"
	"github.com/dkeye/Mesh/internal/app/session"
	"github.com/dkeye/Mesh/internal/domain"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "error: %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "%s\n", msg)
}

func (f *Formatter) Joined(id domain.SessionID, self domain.ParticipantID) {
	fmt.Fprintf(f.w, "joined session %s as %s\n", id, self)
}

func (f *Formatter) Flags(m domain.MediaFlags) {
	fmt.Fprintf(f.w, "video %s  audio %s  screen %s\n", onOff(m.Video), onOff(m.Audio), onOff(m.Screen))
}

func (f *Formatter) Ended(r session.Result) {
	fmt.Fprintf(f.w, "session ended: %s after %s", r.Reason, formatDuration(r.Duration))
	if r.Recorded {
		fmt.Fprint(f.w, " (recorded)")
	}
	fmt.Fprintln(f.w)
}

func (f *Formatter) Roster(remotes []session.Remote) {
	if len(remotes) == 0 {
		f.Info("nobody else is here")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(f.w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Participant", "Name", "Media", "Link", "Tracks", "Joined"})
	for _, r := range remotes {
		t.AppendRow(table.Row{r.ID, r.Display.Name, mediaSummary(r.Media), r.Link, r.Tracks, r.JoinedAt.Format(time.Kitchen)})
	}
	t.Render()
}

func (f *Formatter) Reports(reports []storage.ReportView) {
	if len(reports) == 0 {
		f.Info("no reports")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(f.w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Reported", "By", "At", "Recordings"})
	for _, r := range reports {
		var recs []string
		for _, a := range r.Recordings {
			recs = append(recs, fmt.Sprintf("%s %s %ds", a.Participant, a.ContentType, a.DurationSeconds))
		}
		t.AppendRow(table.Row{r.Participant, r.ReportedBy, r.At.Format(time.RFC3339), strings.Join(recs, "\n")})
	}
	t.Render()
}

func mediaSummary(m domain.MediaFlags) string {
	var parts []string
	if m.Video {
		parts = append(parts, "video")
	}
	if m.Audio {
		parts = append(parts, "audio")
	}
	if m.Screen {
		parts = append(parts, "screen")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "+")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatDuration(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
