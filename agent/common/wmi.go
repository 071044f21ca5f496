package common

import (
	"strings"

	"github.com/jetrmm/sysprobe/agent/config"
	"github.com/jetrmm/sysprobe/shared"
	"github.com/sirupsen/logrus"
)

const DEFAULT_NAMESPACE = config.DEFAULT_NAMESPACE

// Connector opens a session to one WMI namespace.
type Connector interface {
	Connect(namespace string) (Service, error)
}

// Service is a connected namespace.
type Service interface {
	ExecQuery(wql string) (RowSet, error)
	Release()
}

// RowSet is a forward-only result set. Next blocks until the next row is
// available and returns a nil Row once the set is exhausted.
type RowSet interface {
	Next() (Row, error)
	Release()
}

// Row is one class instance. Names lists the non-system properties the
// instance actually has; Value formats one of them as text.
type Row interface {
	Names() ([]string, error)
	Value(name string) (string, error)
	Release()
}

// WMIClient runs WQL queries against a single namespace and flattens every
// row into a FieldMap.
type WMIClient struct {
	rt        *Runtime
	connector Connector
	logger    *logrus.Logger
	policy    shared.FieldErrorPolicy

	namespace string
	svc       Service
}

func NewWMIClient(rt *Runtime, connector Connector, logger *logrus.Logger, policy shared.FieldErrorPolicy) *WMIClient {
	if policy == "" {
		policy = shared.FieldErrorSkip
	}
	return &WMIClient{rt: rt, connector: connector, logger: logger, policy: policy}
}

// Connect opens namespace. The COM runtime must be live.
func (c *WMIClient) Connect(namespace string) error {
	if c.svc != nil {
		return shared.Tag(shared.ErrConnection, nil, "already connected to %s", c.namespace)
	}
	if err := c.rt.acquire(); err != nil {
		return err
	}

	c.logger.Debugln("WMI connect:", namespace)
	svc, err := c.connector.Connect(namespace)
	if err != nil {
		c.rt.release()
		return shared.Tag(shared.ErrConnection, err, "connect %s", namespace)
	}
	c.namespace = namespace
	c.svc = svc
	return nil
}

func (c *WMIClient) Connected() bool { return c.svc != nil }

func (c *WMIClient) Namespace() string { return c.namespace }

// BuildWQL renders SELECT <fields> FROM <class>; no fields selects *.
func BuildWQL(class string, fields []string) string {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			cols = append(cols, f)
		}
	}
	sel := "*"
	if len(cols) > 0 {
		sel = strings.Join(cols, ", ")
	}
	return "SELECT " + sel + " FROM " + class
}

// SplitFields turns "Name, NumberOfCores,ThreadCount" into its field names.
func SplitFields(list string) []string {
	var fields []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// Query selects fields from class and returns every row. An empty result set
// is not an error.
func (c *WMIClient) Query(class string, fields []string) (QueryResult, error) {
	if c.svc == nil {
		return nil, shared.ErrNotConnected
	}

	wql := BuildWQL(class, fields)
	c.logger.Debugln("WMI query:", wql)
	rows, err := c.svc.ExecQuery(wql)
	if err != nil {
		return nil, shared.Tag(shared.ErrQuery, err, "exec %q", wql)
	}
	defer rows.Release()

	result := make(QueryResult, 0)
	for {
		row, err := rows.Next()
		if err != nil {
			return nil, shared.Tag(shared.ErrQuery, err, "next row of %s", class)
		}
		if row == nil {
			break
		}
		fm, err := c.readRow(class, row)
		row.Release()
		if err != nil {
			return nil, err
		}
		result = append(result, fm)
	}
	c.logger.Debugf("WMI %s: %d rows", class, len(result))
	return result, nil
}

func (c *WMIClient) readRow(class string, row Row) (FieldMap, error) {
	names, err := row.Names()
	if err != nil {
		return nil, shared.Tag(shared.ErrQuery, err, "list properties of %s", class)
	}

	fm := make(FieldMap, len(names))
	for _, name := range names {
		v, err := row.Value(name)
		if err == nil {
			fm[name] = v
			continue
		}
		switch c.policy {
		case shared.FieldErrorFail:
			return nil, shared.Tag(shared.ErrQuery, err, "read %s.%s", class, name)
		case shared.FieldErrorEmpty:
			c.logger.Warnf("WMI %s.%s unreadable, recording empty value: %v", class, name, err)
			fm[name] = ""
		default:
			c.logger.Debugf("WMI %s.%s unreadable, skipped: %v", class, name, err)
		}
	}
	return fm, nil
}

// Release closes the session. It is safe to call more than once.
func (c *WMIClient) Release() {
	if c.svc == nil {
		return
	}
	c.svc.Release()
	c.svc = nil
	c.rt.release()
	c.logger.Debugln("WMI released:", c.namespace)
}
