package windows

import (
	"fmt"
	"strings"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/pkg/errors"

	"github.com/jetrmm/sysprobe/agent/common"
)

// oleConnector reaches WMI through the SWbemLocator scripting object.
type oleConnector struct{}

func (oleConnector) Connect(namespace string) (common.Service, error) {
	unknown, err := oleutil.CreateObject(WBEM_LOCATOR)
	if err != nil {
		return nil, err
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, err
	}
	defer locator.Release()

	// nil server connects to the local machine
	raw, err := oleutil.CallMethod(locator, "ConnectServer", nil, namespace)
	if err != nil {
		return nil, err
	}
	return &oleService{raw: raw}, nil
}

// oleService is an SWbemServices object.
type oleService struct {
	raw *ole.VARIANT
}

func (s *oleService) ExecQuery(wql string) (common.RowSet, error) {
	raw, err := oleutil.CallMethod(s.raw.ToIDispatch(), "ExecQuery", wql, "WQL", WBEM_FLAG_FORWARD_ONLY|WBEM_FLAG_RETURN_IMMEDIATELY)
	if err != nil {
		return nil, err
	}

	enumProp, err := raw.ToIDispatch().GetProperty("_NewEnum")
	if err != nil {
		raw.Clear()
		return nil, err
	}
	defer enumProp.Clear()

	enum, err := enumProp.ToIUnknown().IEnumVARIANT(ole.IID_IEnumVariant)
	if err != nil {
		raw.Clear()
		return nil, err
	}
	return &oleRowSet{raw: raw, enum: enum}, nil
}

func (s *oleService) Release() { s.raw.Clear() }

// oleRowSet walks an SWbemObjectSet with IEnumVARIANT.
type oleRowSet struct {
	raw  *ole.VARIANT
	enum *ole.IEnumVARIANT
}

func (s *oleRowSet) Next() (common.Row, error) {
	item, n, err := s.enum.Next(1)
	done, err := enumDone(n, err)
	if done || err != nil {
		return nil, err
	}
	return &oleRow{raw: item}, nil
}

// enumDone interprets IEnumVARIANT.Next. Only S_FALSE with nothing fetched
// ends the set; any other failing HRESULT is returned, fetched or not.
func enumDone(fetched uint, err error) (bool, error) {
	if err != nil {
		var oleErr *ole.OleError
		if errors.As(err, &oleErr) && oleErr.Code() == S_FALSE {
			return fetched == 0, nil
		}
		return false, err
	}
	return fetched == 0, nil
}

func (s *oleRowSet) Release() {
	s.enum.Release()
	s.raw.Clear()
}

// oleRow is one SWbemObject.
type oleRow struct {
	raw ole.VARIANT
}

// Names lists Properties_, which leaves out the __SYSTEM properties.
func (r *oleRow) Names() ([]string, error) {
	props, err := oleutil.GetProperty(r.raw.ToIDispatch(), "Properties_")
	if err != nil {
		return nil, err
	}
	defer props.Clear()

	var names []string
	err = oleutil.ForEach(props.ToIDispatch(), func(v *ole.VARIANT) error {
		defer v.Clear()
		name, err := oleutil.GetProperty(v.ToIDispatch(), "Name")
		if err != nil {
			return err
		}
		defer name.Clear()
		names = append(names, name.ToString())
		return nil
	})
	return names, err
}

func (r *oleRow) Value(name string) (string, error) {
	v, err := oleutil.GetProperty(r.raw.ToIDispatch(), name)
	if err != nil {
		return "", err
	}
	defer v.Clear()
	return formatVariant(v)
}

func (r *oleRow) Release() { r.raw.Clear() }

// formatVariant renders a property value as text. Null is "", arrays are
// comma-joined and everything else goes through VarFormat.
func formatVariant(v *ole.VARIANT) (string, error) {
	switch {
	case v.VT == ole.VT_NULL || v.VT == ole.VT_EMPTY:
		return "", nil
	case v.VT&ole.VT_ARRAY != 0:
		arr := v.ToArray()
		if arr == nil {
			return "", nil
		}
		vals := arr.ToValueArray()
		parts := make([]string, len(vals))
		for i, x := range vals {
			parts[i] = fmt.Sprint(x)
		}
		return strings.Join(parts, ","), nil
	}
	return VarFormat(v)
}
