package common

import (
	"testing"
	"time"

	"github.com/jetrmm/sysprobe/internal/registry"
	"github.com/jetrmm/sysprobe/shared"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mapQuerier map[string]QueryResult

func (m mapQuerier) Query(class string, fields []string) (QueryResult, error) {
	if res, ok := m[class]; ok {
		return res, nil
	}
	return QueryResult{}, nil
}

type mockReader struct{ mock.Mock }

func (m *mockReader) ReadString(root registry.Root, path, name string, flags registry.Flags) (string, error) {
	args := m.Called(root, path, name, flags)
	return args.String(0), args.Error(1)
}

type fixedEnv struct {
	firmware string
	err      error
	now      time.Time
}

func (e fixedEnv) FirmwareType() (string, error) { return e.firmware, e.err }
func (e fixedEnv) Now() time.Time                { return e.now }

func osQuerier() mapQuerier {
	return mapQuerier{
		CLASS_OS: {{
			"Caption":        "Microsoft Windows 11 Pro",
			"Version":        "10.0.22631",
			"InstallDate":    "20230301120000.000000+060",
			"LastBootUpTime": "20231115080000.500000+000",
		}},
		CLASS_COMPUTER: {{
			"UserName":    `WORKGROUP\alice`,
			"Domain":      "WORKGROUP",
			"BootupState": "Normal boot",
			"Model":       "Latitude 7440",
		}},
	}
}

func displayVersionReader(value string, err error) *mockReader {
	r := &mockReader{}
	r.On("ReadString", registry.LocalMachine, REG_CURRENT_VERSION, REG_DISPLAY_VERSION, registry.RRF_RT_REG_SZ).Return(value, err)
	return r
}

func TestBuildOSInfo(t *testing.T) {
	now := time.Date(2023, 11, 15, 9, 0, 0, 0, time.UTC)
	r := displayVersionReader("23H2", nil)

	info, err := BuildOSInfo(osQuerier(), r, fixedEnv{firmware: "UEFI", now: now})
	require.NoError(t, err)
	assert.Equal(t, &shared.OSInfo{
		Edition:         "Microsoft Windows 11 Pro",
		Version:         "10.0.22631",
		FriendlyVersion: "23H2",
		InstallDate:     time.Date(2023, 3, 1, 11, 0, 0, 0, time.UTC).Unix(),
		Uptime:          3600,
		Username:        `WORKGROUP\alice`,
		Domain:          "WORKGROUP",
		BootMode:        "UEFI",
		BootState:       "Normal boot",
		Model:           "Latitude 7440",
	}, info)
	r.AssertExpectations(t)
}

func TestBuildOSInfoFailures(t *testing.T) {
	env := fixedEnv{firmware: "BIOS", now: time.Now()}

	t.Run("missing field", func(t *testing.T) {
		q := osQuerier()
		delete(q[CLASS_COMPUTER][0], "Model")
		_, err := BuildOSInfo(q, displayVersionReader("22H2", nil), env)
		var mf *shared.MissingFieldError
		require.True(t, errors.As(err, &mf))
		assert.Equal(t, CLASS_COMPUTER, mf.Class)
		assert.Equal(t, "Model", mf.Field)
	})

	t.Run("no instances", func(t *testing.T) {
		q := osQuerier()
		delete(q, CLASS_OS)
		_, err := BuildOSInfo(q, displayVersionReader("22H2", nil), env)
		assert.True(t, errors.Is(err, shared.ErrMissingField))
	})

	t.Run("bad timestamp", func(t *testing.T) {
		q := osQuerier()
		q[CLASS_OS][0]["InstallDate"] = "not a date"
		_, err := BuildOSInfo(q, displayVersionReader("22H2", nil), env)
		assert.True(t, errors.Is(err, shared.ErrDecode))
	})

	t.Run("registry", func(t *testing.T) {
		regErr := shared.Tag(shared.ErrRegistry, errors.New("file not found"), "fetch")
		_, err := BuildOSInfo(osQuerier(), displayVersionReader("", regErr), env)
		assert.True(t, errors.Is(err, shared.ErrRegistry))
	})

	t.Run("firmware", func(t *testing.T) {
		_, err := BuildOSInfo(osQuerier(), displayVersionReader("22H2", nil), fixedEnv{err: errors.New("no firmware type"), now: time.Now()})
		assert.Error(t, err)
	})
}

func processorRow() FieldMap {
	return FieldMap{
		"Name":              "13th Gen Intel(R) Core(TM) i7-1365U",
		"NumberOfCores":     "10",
		"ThreadCount":       "12",
		"CurrentClockSpeed": "1800",
		"CurrentVoltage":    "140",
		"MaxClockSpeed":     "1800",
		"SocketDesignation": "U3E1",
		"LoadPercentage":    "7",
		"VoltageCaps":       "",
	}
}

func TestBuildProcessorInfo(t *testing.T) {
	cpus, err := BuildProcessorInfo(mapQuerier{CLASS_PROCESSOR: {processorRow()}})
	require.NoError(t, err)
	require.Len(t, cpus, 1)

	p := cpus[0]
	assert.Equal(t, "13th Gen Intel(R) Core(TM) i7-1365U", p.Name)
	assert.Equal(t, uint32(10), p.Cores)
	assert.Equal(t, uint32(12), p.Threads)
	assert.Equal(t, uint32(1800), p.CurrentClockSpeed)
	assert.Equal(t, uint32(1800), p.MaxClockSpeed)
	assert.Equal(t, "U3E1", p.Socket)
	require.NotNil(t, p.CurrentVoltage)
	assert.Equal(t, uint16(120), *p.CurrentVoltage, "0x8C: valid bit set, 12 tenths")
	require.NotNil(t, p.LoadPercentage)
	assert.Equal(t, uint16(7), *p.LoadPercentage)
	assert.Nil(t, p.VoltageCaps)
}

func TestBuildProcessorInfoVoltage(t *testing.T) {
	tests := []struct {
		raw  string
		want *uint16
	}{
		{"12", nil},
		{"", nil},
		{"128", ptr[uint16](0)},
		{"161", ptr[uint16](330)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			row := processorRow()
			row["CurrentVoltage"] = tt.raw
			cpus, err := BuildProcessorInfo(mapQuerier{CLASS_PROCESSOR: {row}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cpus[0].CurrentVoltage)
		})
	}
}

func TestBuildProcessorInfoFailures(t *testing.T) {
	_, err := BuildProcessorInfo(mapQuerier{})
	assert.True(t, errors.Is(err, shared.ErrMissingField), "no processors")

	row := processorRow()
	row["ThreadCount"] = "many"
	_, err = BuildProcessorInfo(mapQuerier{CLASS_PROCESSOR: {row}})
	assert.True(t, errors.Is(err, shared.ErrDecode))

	row = processorRow()
	delete(row, "VoltageCaps")
	_, err = BuildProcessorInfo(mapQuerier{CLASS_PROCESSOR: {row}})
	assert.True(t, errors.Is(err, shared.ErrMissingField))
}

func TestBuildGraphicsInfo(t *testing.T) {
	q := mapQuerier{CLASS_VIDEO: {
		{
			"Name":                        "Intel(R) Iris(R) Xe Graphics",
			"AdapterRAM":                  "1073741824",
			"CurrentHorizontalResolution": "2560",
			"CurrentVerticalResolution":   "1440",
			"CurrentRefreshRate":          "60",
			"CurrentBitsPerPixel":         "32",
		},
		{
			"Name":                        "Microsoft Basic Display Adapter",
			"AdapterRAM":                  "",
			"CurrentHorizontalResolution": "",
			"CurrentVerticalResolution":   "",
			"CurrentRefreshRate":          "",
			"CurrentBitsPerPixel":         "",
		},
	}}

	gpus, err := BuildGraphicsInfo(q)
	require.NoError(t, err)
	require.Len(t, gpus, 2)
	assert.Equal(t, shared.GraphicsInfo{
		Name:                 "Intel(R) Iris(R) Xe Graphics",
		AdapterRAM:           ptr[uint64](1073741824),
		HorizontalResolution: ptr[uint32](2560),
		VerticalResolution:   ptr[uint32](1440),
		RefreshRate:          ptr[uint32](60),
		BitsPerPixel:         ptr[uint32](32),
	}, gpus[0])
	assert.Equal(t, shared.GraphicsInfo{Name: "Microsoft Basic Display Adapter"}, gpus[1])
}

func TestBuildGraphicsInfoNoAdapters(t *testing.T) {
	gpus, err := BuildGraphicsInfo(mapQuerier{})
	require.NoError(t, err)
	assert.Empty(t, gpus)
}

func TestBuildHardwareInfoPropagatesQueryError(t *testing.T) {
	_, err := BuildHardwareInfo(failingQuerier{})
	assert.True(t, errors.Is(err, shared.ErrQuery))
}

type failingQuerier struct{}

func (failingQuerier) Query(class string, fields []string) (QueryResult, error) {
	return nil, shared.Tag(shared.ErrQuery, errors.New("invalid class"), "exec")
}

func ptr[T any](v T) *T { return &v }
