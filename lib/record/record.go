// Package record writes sweep results as one CSV-like file per sweep step.
//
// File layout:
//
//	Angle of: 12.500
//	Freq [GHz],7, 7.06, 7.12, ...
//	S21 [Mag],-12.1, -12.3, ...
//	S21 [Phase],45.2, 44.8, ...
//
// with a Mag/Phase row pair per measured S-parameter, in channel order.
package record

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marslab/vna"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultLabel heads files written for an angle sweep.
const DefaultLabel = "Angle"

// AngleStep formats an angle in degrees as a step identifier.
func AngleStep(deg float64) string {
	return strconv.FormatFloat(deg, 'f', 3, 64)
}

// Encode writes r in the result file format.
func Encode(w io.Writer, label, step string, r *vna.Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s of: %s\n", label, step)

	ghz := r.Freq()
	for i := range ghz {
		ghz[i] /= 1e9
	}
	writeRow(bw, "Freq [GHz]", ghz)
	for _, sp := range r.SParams() {
		tr, _ := r.Trace(sp)
		writeRow(bw, sp.String()+" [Mag]", tr.Magnitude)
		writeRow(bw, sp.String()+" [Phase]", tr.Phase)
	}
	return bw.Flush()
}

func writeRow(w *bufio.Writer, label string, vals []float64) {
	w.WriteString(label)
	w.WriteByte(',')
	for i, v := range vals {
		if i > 0 {
			w.WriteString(", ")
		}
		w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	w.WriteByte('\n')
}

// Writer stores results in a directory, one file per step.
type Writer struct {
	Dir   string
	Label string
	Log   logrus.FieldLogger
}

// Path returns the file a step is written to.
func (w *Writer) Path(step string) string {
	return filepath.Join(w.Dir, step+".csv")
}

// Record writes r to the file for step, replacing an existing one.
func (w *Writer) Record(step string, r *vna.Result) error {
	label := w.Label
	if label == "" {
		label = DefaultLabel
	}
	path := w.Path(step)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating result file")
	}
	if err := Encode(f, label, step, r); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	if w.Log != nil {
		if fi, err := os.Stat(path); err == nil {
			w.Log.Infof("wrote %s (%s)", path, humanize.Bytes(uint64(fi.Size())))
		}
	}
	return nil
}

var validName = regexp.MustCompile(`^[\w-]*$`)

// NewRunDir creates a fresh directory for a measurement run:
// <base>/<Mon_DD_YYYY>/measurement[_name]_<n>, with n one more than the
// highest run number already in the day directory. Names may only hold
// letters, digits, dash and underscore; others are dropped.
func NewRunDir(base, name string, now time.Time, log logrus.FieldLogger) (string, error) {
	day := filepath.Join(base, now.Format("Jan_02_2006"))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", errors.Wrap(err, "creating day directory")
	}
	entries, err := os.ReadDir(day)
	if err != nil {
		return "", errors.Wrap(err, "listing day directory")
	}
	last := 0
	for _, e := range entries {
		i := strings.LastIndexByte(e.Name(), '_')
		if n, err := strconv.Atoi(e.Name()[i+1:]); err == nil && n > last {
			last = n
		}
	}

	run := "measurement"
	switch {
	case name == "":
	case validName.MatchString(name):
		run += "_" + name
	default:
		if log != nil {
			log.Warnf("invalid run name %q, use only letters, digits, dash or underscore; using default naming", name)
		}
	}
	dir := filepath.Join(day, fmt.Sprintf("%s_%d", run, last+1))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating run directory")
	}
	return dir, nil
}
