package common

import (
	"io"
	"testing"

	"github.com/jetrmm/sysprobe/shared"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInit struct {
	inits, uninits int
	err            error
}

func (f *fakeInit) Initialize() error { f.inits++; return f.err }
func (f *fakeInit) Uninitialize()     { f.uninits++ }

// fakeRow is a class instance. A value of "<err>" makes Value fail.
type fakeRow struct {
	names    []string
	values   map[string]string
	namesErr error
	released *int
}

var errValue = errors.New("property get failed")

func (r *fakeRow) Names() ([]string, error) { return r.names, r.namesErr }

func (r *fakeRow) Value(name string) (string, error) {
	v := r.values[name]
	if v == "<err>" {
		return "", errValue
	}
	return v, nil
}

func (r *fakeRow) Release() { *r.released++ }

type fakeRowSet struct {
	rows     []*fakeRow
	pos      int
	nextErr  error
	released int
}

func (s *fakeRowSet) Next() (Row, error) {
	if s.nextErr != nil && s.pos == len(s.rows) {
		return nil, s.nextErr
	}
	if s.pos == len(s.rows) {
		return nil, nil
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func (s *fakeRowSet) Release() { s.released++ }

type fakeService struct {
	sets     map[string]*fakeRowSet
	queries  []string
	execErr  error
	released int
}

func (s *fakeService) ExecQuery(wql string) (RowSet, error) {
	s.queries = append(s.queries, wql)
	if s.execErr != nil {
		return nil, s.execErr
	}
	set, ok := s.sets[wql]
	if !ok {
		return &fakeRowSet{}, nil
	}
	return set, nil
}

func (s *fakeService) Release() { s.released++ }

type fakeConnector struct {
	svc        *fakeService
	err        error
	namespaces []string
}

func (c *fakeConnector) Connect(namespace string) (Service, error) {
	c.namespaces = append(c.namespaces, namespace)
	if c.err != nil {
		return nil, c.err
	}
	return c.svc, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := InitRuntime(&fakeInit{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func rowsOf(released *int, rows ...map[string]string) []*fakeRow {
	out := make([]*fakeRow, 0, len(rows))
	for _, values := range rows {
		r := &fakeRow{values: values, released: released}
		for k := range values {
			r.names = append(r.names, k)
		}
		out = append(out, r)
	}
	return out
}

func connectedClient(t *testing.T, svc *fakeService, policy shared.FieldErrorPolicy) *WMIClient {
	t.Helper()
	c := NewWMIClient(newTestRuntime(t), &fakeConnector{svc: svc}, quietLogger(), policy)
	require.NoError(t, c.Connect(DEFAULT_NAMESPACE))
	t.Cleanup(c.Release)
	return c
}

func TestBuildWQL(t *testing.T) {
	assert.Equal(t, "SELECT Name, ThreadCount FROM Win32_Processor", BuildWQL("Win32_Processor", []string{"Name", " ThreadCount "}))
	assert.Equal(t, "SELECT * FROM Win32_BIOS", BuildWQL("Win32_BIOS", nil))
	assert.Equal(t, "SELECT * FROM Win32_BIOS", BuildWQL("Win32_BIOS", []string{"", " "}))
}

func TestSplitFields(t *testing.T) {
	assert.Equal(t, []string{"UserName", "Domain", "BootupState"}, SplitFields("UserName, Domain,BootupState, "))
	assert.Empty(t, SplitFields(""))
}

func TestQueryNullFieldIsEmptyString(t *testing.T) {
	var released int
	wql := "SELECT A, B FROM Test_Class"
	svc := &fakeService{sets: map[string]*fakeRowSet{
		wql: {rows: rowsOf(&released, map[string]string{"A": "value", "B": ""})},
	}}
	c := connectedClient(t, svc, shared.FieldErrorSkip)

	res, err := c.Query("Test_Class", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, QueryResult{{"A": "value", "B": ""}}, res)
	assert.Equal(t, 1, released, "row released")
	assert.Equal(t, 1, svc.sets[wql].released, "row set released")
}

func TestQueryZeroRows(t *testing.T) {
	c := connectedClient(t, &fakeService{}, shared.FieldErrorSkip)

	res, err := c.Query("Win32_PortableBattery", []string{"Name"})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestQueryUsesRowPropertiesNotRequestedFields(t *testing.T) {
	var released int
	wql := "SELECT Name FROM Win32_VideoController"
	svc := &fakeService{sets: map[string]*fakeRowSet{
		wql: {rows: rowsOf(&released,
			map[string]string{"Name": "GPU 0", "AdapterRAM": "1073741824"},
			map[string]string{"Name": "GPU 1", "AdapterRAM": ""},
		)},
	}}
	c := connectedClient(t, svc, shared.FieldErrorSkip)

	res, err := c.Query("Win32_VideoController", []string{"Name"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, FieldMap{"Name": "GPU 0", "AdapterRAM": "1073741824"}, res[0])
	assert.Equal(t, FieldMap{"Name": "GPU 1", "AdapterRAM": ""}, res[1])
	assert.Equal(t, 2, released)
}

func TestQueryFieldErrorPolicies(t *testing.T) {
	wql := "SELECT A, B, C FROM Test_Class"
	newSvc := func(released *int) *fakeService {
		return &fakeService{sets: map[string]*fakeRowSet{
			wql: {rows: rowsOf(released, map[string]string{"A": "1", "B": "<err>", "C": "3"})},
		}}
	}

	t.Run("skip", func(t *testing.T) {
		var released int
		res, err := connectedClient(t, newSvc(&released), shared.FieldErrorSkip).Query("Test_Class", []string{"A", "B", "C"})
		require.NoError(t, err)
		assert.Equal(t, QueryResult{{"A": "1", "C": "3"}}, res)
	})

	t.Run("empty", func(t *testing.T) {
		var released int
		res, err := connectedClient(t, newSvc(&released), shared.FieldErrorEmpty).Query("Test_Class", []string{"A", "B", "C"})
		require.NoError(t, err)
		assert.Equal(t, QueryResult{{"A": "1", "B": "", "C": "3"}}, res)
	})

	t.Run("fail", func(t *testing.T) {
		var released int
		res, err := connectedClient(t, newSvc(&released), shared.FieldErrorFail).Query("Test_Class", []string{"A", "B", "C"})
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, shared.ErrQuery))
		assert.True(t, errors.Is(err, errValue))
		assert.Equal(t, 1, released, "row released on failure")
	})
}

func TestQueryErrors(t *testing.T) {
	t.Run("exec", func(t *testing.T) {
		c := connectedClient(t, &fakeService{execErr: errors.New("invalid class")}, shared.FieldErrorSkip)
		_, err := c.Query("Win32_Nope", []string{"Name"})
		assert.True(t, errors.Is(err, shared.ErrQuery))
	})

	t.Run("next", func(t *testing.T) {
		var released int
		wql := "SELECT Name FROM Win32_Processor"
		set := &fakeRowSet{rows: rowsOf(&released, map[string]string{"Name": "cpu"}), nextErr: errors.New("rpc unavailable")}
		c := connectedClient(t, &fakeService{sets: map[string]*fakeRowSet{wql: set}}, shared.FieldErrorSkip)
		_, err := c.Query("Win32_Processor", []string{"Name"})
		assert.True(t, errors.Is(err, shared.ErrQuery))
		assert.Equal(t, 1, set.released)
	})

	t.Run("names", func(t *testing.T) {
		var released int
		wql := "SELECT Name FROM Win32_Processor"
		row := &fakeRow{namesErr: errors.New("access denied"), released: &released}
		c := connectedClient(t, &fakeService{sets: map[string]*fakeRowSet{wql: {rows: []*fakeRow{row}}}}, shared.FieldErrorSkip)
		_, err := c.Query("Win32_Processor", []string{"Name"})
		assert.True(t, errors.Is(err, shared.ErrQuery))
		assert.Equal(t, 1, released)
	})
}

func TestClientLifecycle(t *testing.T) {
	svc := &fakeService{}
	rt := newTestRuntime(t)
	conn := &fakeConnector{svc: svc}
	c := NewWMIClient(rt, conn, quietLogger(), "")

	_, err := c.Query("Win32_OperatingSystem", nil)
	assert.ErrorIs(t, err, shared.ErrNotConnected, "query before connect")

	require.NoError(t, c.Connect(`root\CIMV2`))
	assert.True(t, c.Connected())
	assert.Equal(t, `root\CIMV2`, c.Namespace())
	assert.True(t, errors.Is(c.Connect(`root\CIMV2`), shared.ErrConnection), "double connect")

	assert.ErrorIs(t, rt.Close(), shared.ErrClientsOpen)

	c.Release()
	c.Release()
	assert.False(t, c.Connected())
	assert.Equal(t, 1, svc.released)

	_, err = c.Query("Win32_OperatingSystem", nil)
	assert.ErrorIs(t, err, shared.ErrNotConnected, "query after release")

	require.NoError(t, rt.Close())
	assert.ErrorIs(t, c.Connect(`root\CIMV2`), shared.ErrNotInitialized, "connect after runtime closed")
}

func TestConnectFailure(t *testing.T) {
	rt := newTestRuntime(t)
	c := NewWMIClient(rt, &fakeConnector{err: errors.New("RPC server unavailable")}, quietLogger(), shared.FieldErrorSkip)

	err := c.Connect(`root\Bogus`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConnection))
	assert.False(t, c.Connected())
	assert.NoError(t, rt.Close(), "failed connect does not hold the runtime")
}

func TestConnectWithoutRuntime(t *testing.T) {
	c := NewWMIClient(nil, &fakeConnector{svc: &fakeService{}}, quietLogger(), shared.FieldErrorSkip)
	assert.ErrorIs(t, c.Connect(DEFAULT_NAMESPACE), shared.ErrNotInitialized)
}

func TestRuntimeSingleInstance(t *testing.T) {
	fi := &fakeInit{}
	rt, err := InitRuntime(fi)
	require.NoError(t, err)

	_, err = InitRuntime(&fakeInit{})
	assert.ErrorIs(t, err, shared.ErrAlreadyInitialized)

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	assert.Equal(t, 1, fi.inits)
	assert.Equal(t, 1, fi.uninits)

	rt2, err := InitRuntime(&fakeInit{})
	require.NoError(t, err, "a closed runtime can be replaced")
	require.NoError(t, rt2.Close())
}

func TestRuntimeInitFailure(t *testing.T) {
	_, err := InitRuntime(&fakeInit{err: errors.New("RPC_E_CHANGED_MODE")})
	assert.True(t, errors.Is(err, shared.ErrNotInitialized))

	rt, err := InitRuntime(&fakeInit{})
	require.NoError(t, err, "failed init does not leave the runtime marked live")
	require.NoError(t, rt.Close())
}
