// Package find locates USB serial adapters (the Prologix controller, the
// stage's Arduino) through sysfs.
package find

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultRoot is where sysfs is mounted.
const DefaultRoot = "/sys"

type FilterFn func(*Usbtty) bool

func ArduinoFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Arduino")
}

func PrologixFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Prod, "Prologix") || strings.Contains(ut.Mfg, "Prologix")
}

func SerialFilter(s string) func(ut *Usbtty) bool {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// Find searches the default sysfs root. See Finder.Find.
func Find(filter FilterFn) (string, error) {
	return Finder{Root: DefaultRoot}.Find(filter)
}

// Finder looks for USB ttys below a sysfs root.
type Finder struct {
	Root string
	Log  logrus.FieldLogger
}

func (f Finder) logger() logrus.FieldLogger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}

// Find returns the device name (ttyACM0) of the USB tty matching filter.
// With a nil filter there must be exactly one USB tty.
func (f Finder) Find(filter FilterFn) (string, error) {
	ttys, err := f.All()
	if err != nil {
		return "", err
	}
	if filter != nil {
		var matched Usbttys
		for i := range ttys {
			if filter(&ttys[i]) {
				matched = append(matched, ttys[i])
				break
			}
		}
		ttys = matched
	}
	switch len(ttys) {
	case 0:
		return "", errors.New("no matching ttys found")
	case 1:
		return ttys[0].Dev, nil
	}
	return "", errors.Errorf("multiple ttys:\n%s", ttys)
}

type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// All lists the ttys on USB devices. Each entry of <root>/class/tty is a
// symlink into <root>/devices; for USB ttys its device link points at the
// interface directory, whose parent holds the USB descriptor strings.
func (f Finder) All() (Usbttys, error) {
	var devs Usbttys
	classDir := filepath.Join(f.Root, "class", "tty")
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return nil, err
	}
	devicesDir, err := filepath.EvalSymlinks(filepath.Join(f.Root, "devices"))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		path := filepath.Join(classDir, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			f.logger().Debugf("error evaluating symlink %s; skipping: %s", path, err)
			continue
		}
		rel, err := filepath.Rel(devicesDir, abs)
		if err != nil || !strings.Contains(rel, "usb") {
			continue
		}
		iface, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			f.logger().Debugf("usb tty %s lacks a device link: %s", abs, err)
			continue
		}
		ut, err := readUsbInfo(filepath.Dir(iface))
		if err != nil {
			f.logger().Debugf("%s: %s", abs, err)
		}
		ut.Dev, ut.Path = e.Name(), abs
		devs = append(devs, ut)
	}
	return devs, nil
}

// readUsbInfo reads the product and vendor ids and the descriptor strings of
// a USB device. Missing files are not an error; the last other error is
// returned along with whatever could be read.
func readUsbInfo(dev string) (Usbtty, error) {
	var (
		ut  Usbtty
		err error
	)
	for name, dst := range map[string]*string{
		"idProduct":    &ut.IDp,
		"idVendor":     &ut.IDv,
		"manufacturer": &ut.Mfg,
		"product":      &ut.Prod,
		"serial":       &ut.Serial,
	} {
		b, rerr := os.ReadFile(filepath.Join(dev, name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		*dst = strings.TrimSpace(string(b))
	}
	return ut, err
}
