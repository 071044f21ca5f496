package common

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/oklog/ulid/v2"
	"github.com/ugorji/go/codec"
	"gopkg.in/yaml.v3"

	"github.com/jetrmm/sysprobe/shared"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle    = lipgloss.NewStyle().Faint(true)
)

// NewReportID creates a unique, time-ordered report ID.
func NewReportID(t time.Time) (ulid.ULID, error) {
	entropy := rand.New(rand.NewSource(t.UnixNano()))
	return ulid.New(ulid.Timestamp(t), entropy)
}

// NewReport starts an empty report stamped with now.
func NewReport(agentID string, now time.Time) (*shared.Report, error) {
	id, err := NewReportID(now)
	if err != nil {
		return nil, err
	}
	return &shared.Report{ID: id.String(), AgentID: agentID, CollectedAt: now.UTC()}, nil
}

func jsonHandle() *codec.JsonHandle {
	jh := &codec.JsonHandle{}
	jh.Indent = 2
	jh.Canonical = true
	jh.HTMLCharsAsIs = true
	return jh
}

func msgpackHandle() *codec.MsgpackHandle {
	mh := &codec.MsgpackHandle{}
	mh.WriteExt = true
	mh.Canonical = true
	return mh
}

// EncodeJSON renders v as indented JSON with sorted map keys.
func EncodeJSON(v interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, jsonHandle()).Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeMsgpack is the wire form published on the message bus.
func EncodeMsgpack(v interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, msgpackHandle()).Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeMsgpack is the inverse of EncodeMsgpack.
func DecodeMsgpack(b []byte, v interface{}) error {
	return codec.NewDecoderBytes(b, msgpackHandle()).Decode(v)
}

func encode(w io.Writer, v interface{}, f shared.OutputFormat) error {
	switch f {
	case shared.OutputJSON:
		b, err := EncodeJSON(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case shared.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("no encoder for %q", f)
	}
}

// RenderReport writes r to w in format f.
func RenderReport(w io.Writer, r *shared.Report, f shared.OutputFormat) error {
	if f != shared.OutputText {
		return encode(w, r, f)
	}

	p := &printer{w: w}
	p.header(fmt.Sprintf("Report %s", r.ID))
	p.kv("Collected", r.CollectedAt.Format(time.RFC3339))
	if r.AgentID != "" {
		p.kv("Agent", r.AgentID)
	}

	if h := r.Host; h != nil {
		p.header("Host")
		p.kv("Hostname", h.Hostname)
		p.kv("Architecture", h.Architecture)
		p.kv("Boot time", h.BootTime.Format(time.RFC3339))
		p.kv("Memory", ByteCountSI(h.TotalMemory))
		p.kv("Logical CPUs", fmt.Sprint(h.LogicalCPUs))
	}

	if o := r.OS; o != nil {
		p.header("Operating system")
		p.kv("Edition", o.Edition)
		p.kv("Version", strings.TrimSpace(o.Version+" "+o.FriendlyVersion))
		p.kv("Installed", time.Unix(o.InstallDate, 0).UTC().Format(time.RFC3339))
		p.kv("Uptime", (time.Duration(o.Uptime) * time.Second).String())
		p.kv("User", o.Username)
		p.kv("Domain", o.Domain)
		p.kv("Boot mode", o.BootMode)
		p.kv("Boot state", o.BootState)
		p.kv("Model", o.Model)
	}

	if hw := r.Hardware; hw != nil {
		for i, c := range hw.Processors {
			p.header(fmt.Sprintf("Processor %d", i))
			p.kv("Name", c.Name)
			p.kv("Socket", c.Socket)
			p.kv("Cores / threads", fmt.Sprintf("%d / %d", c.Cores, c.Threads))
			p.kv("Clock", fmt.Sprintf("%d MHz (max %d MHz)", c.CurrentClockSpeed, c.MaxClockSpeed))
			if c.CurrentVoltage != nil {
				p.kv("Voltage", fmt.Sprintf("%.1f V", float64(*c.CurrentVoltage)/10))
			}
			if c.LoadPercentage != nil {
				p.kv("Load", fmt.Sprintf("%d%%", *c.LoadPercentage))
			}
			if c.VoltageCaps != nil {
				p.kv("Voltage caps", *c.VoltageCaps)
			}
		}
		for i, g := range hw.Graphics {
			p.header(fmt.Sprintf("Graphics %d", i))
			p.kv("Name", g.Name)
			if g.AdapterRAM != nil {
				p.kv("Adapter RAM", ByteCountSI(*g.AdapterRAM))
			}
			if g.HorizontalResolution != nil && g.VerticalResolution != nil {
				p.kv("Resolution", fmt.Sprintf("%dx%d", *g.HorizontalResolution, *g.VerticalResolution))
			}
			if g.RefreshRate != nil {
				p.kv("Refresh rate", fmt.Sprintf("%d Hz", *g.RefreshRate))
			}
			if g.BitsPerPixel != nil {
				p.kv("Bits per pixel", fmt.Sprint(*g.BitsPerPixel))
			}
		}
	}

	if len(r.Errors) > 0 {
		p.header("Errors")
		for _, name := range FieldMap(r.Errors).Names() {
			p.kv(name, r.Errors[name])
		}
	}
	return p.err
}

// RenderQuery writes the rows of a raw query to w in format f.
func RenderQuery(w io.Writer, class string, res QueryResult, f shared.OutputFormat) error {
	if f != shared.OutputText {
		return encode(w, res, f)
	}

	p := &printer{w: w}
	if len(res) == 0 {
		p.header(fmt.Sprintf("%s: no instances", class))
		return p.err
	}
	for i, row := range res {
		p.header(fmt.Sprintf("%s [%d]", class, i))
		for _, name := range row.Names() {
			p.kv(name, row[name])
		}
	}
	return p.err
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) header(s string) {
	if p.err == nil {
		_, p.err = fmt.Fprintln(p.w, headerStyle.Render(s))
	}
}

func (p *printer) kv(k, v string) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, "  %s %s\n", keyStyle.Render(k+":"), v)
	}
}
