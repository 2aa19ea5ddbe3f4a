package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// RecordType tags a record inside a bundle.
type RecordType string

const (
	TypePrescription     RecordType = "PRESCRIPTION"
	TypeDiagnosticReport RecordType = "DIAGNOSTIC_REPORT"
	TypeLabReport        RecordType = "LAB_REPORT"
	TypeImmunization     RecordType = "IMMUNIZATION"
)

// Record is one typed entry of a bundle. The set of implementations is
// closed: the four known kinds plus Unknown for forward-compatible input.
type Record interface {
	RecordType() RecordType
	isRecord()
}

// Common carries the fields every known kind shares. Extra keeps members a
// holder sent that the kind does not model, so they survive storage and
// delivery unchanged.
type Common struct {
	Date          string                     `json:"date,omitempty"`
	CareContextID string                     `json:"careContextId,omitempty"`
	Extra         map[string]json.RawMessage `json:"-"`
}

func (c Common) extraFields() map[string]json.RawMessage      { return c.Extra }
func (c *Common) setExtraFields(m map[string]json.RawMessage) { c.Extra = m }

type Medicine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type Prescription struct {
	Common
	Medicines    []Medicine `json:"medicines"`
	PrescribedBy string     `json:"prescribedBy,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// Measurement is a single analyte result in a diagnostic report. Value is
// kept as raw JSON: holders send numbers (14.2) as often as strings ("6.1%").
type Measurement struct {
	Value  json.RawMessage            `json:"value,omitempty"`
	Unit   string                     `json:"unit,omitempty"`
	Status string                     `json:"status,omitempty"`
	Extra  map[string]json.RawMessage `json:"-"`
}

type plainMeasurement Measurement

var measurementFields = jsonFields(reflect.TypeFor[Measurement]())

func (m Measurement) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(plainMeasurement(m))
	if err != nil {
		return nil, err
	}
	return appendExtra(body, m.Extra, measurementFields)
}

func (m *Measurement) UnmarshalJSON(data []byte) error {
	var p plainMeasurement
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if len(p.Value) > 0 {
		v, err := compact(p.Value)
		if err != nil {
			return err
		}
		p.Value = v
	}
	extra, err := splitExtra(data, measurementFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*m = Measurement(p)
	return nil
}

type DiagnosticReport struct {
	Common
	TestName   string                 `json:"testName"`
	TestCode   string                 `json:"testCode,omitempty"`
	Results    map[string]Measurement `json:"results,omitempty"`
	TestedBy   string                 `json:"testedBy,omitempty"`
	TestedDate string                 `json:"testedDate,omitempty"`
}

type LabReport struct {
	Common
	TestName       string `json:"testName"`
	Result         string `json:"result,omitempty"`
	Status         string `json:"status,omitempty"`
	LabName        string `json:"labName,omitempty"`
	ReferenceRange string `json:"referenceRange,omitempty"`
}

type Vaccine struct {
	Name         string `json:"name"`
	Dose         string `json:"dose,omitempty"`
	Date         string `json:"date,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

type Immunization struct {
	Common
	Vaccines       []Vaccine `json:"vaccines"`
	AdministeredBy string    `json:"administeredBy,omitempty"`
}

// Unknown preserves a record whose type this gateway does not model. Fields
// holds every JSON member except "type".
type Unknown struct {
	Type   RecordType
	Fields map[string]any
}

func (Prescription) RecordType() RecordType     { return TypePrescription }
func (DiagnosticReport) RecordType() RecordType { return TypeDiagnosticReport }
func (LabReport) RecordType() RecordType        { return TypeLabReport }
func (Immunization) RecordType() RecordType     { return TypeImmunization }
func (u Unknown) RecordType() RecordType        { return u.Type }

func (Prescription) isRecord()     {}
func (DiagnosticReport) isRecord() {}
func (LabReport) isRecord()        {}
func (Immunization) isRecord()     {}
func (Unknown) isRecord()          {}

// Bundle is the structured health-data payload of one transfer.
type Bundle struct {
	Records []Record
}

// Types returns the distinct record types in first-seen order.
func (b Bundle) Types() []RecordType {
	seen := make(map[RecordType]bool, len(b.Records))
	var out []RecordType
	for _, r := range b.Records {
		if t := r.RecordType(); !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type wireBundle struct {
	Records []json.RawMessage `json:"records"`
}

// MarshalJSON writes {"records":[{"type":...}, ...]}.
func (b Bundle) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(b.Records))
	for i, r := range b.Records {
		enc, err := marshalRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		raw = append(raw, enc)
	}
	return json.Marshal(wireBundle{Records: raw})
}

// UnmarshalJSON dispatches each record on its "type" member.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var wire wireBundle
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Records == nil {
		return fmt.Errorf("records is required")
	}
	records := make([]Record, 0, len(wire.Records))
	for i, raw := range wire.Records {
		r, err := unmarshalRecord(raw)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	b.Records = records
	return nil
}

func marshalRecord(r Record) ([]byte, error) {
	if u, ok := r.(Unknown); ok {
		if u.Type == "" {
			return nil, fmt.Errorf("unknown record without type")
		}
		fields := make(map[string]any, len(u.Fields)+1)
		for k, v := range u.Fields {
			fields[k] = v
		}
		fields["type"] = u.Type
		return json.Marshal(fields)
	}

	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(r.RecordType())
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	e, ok := r.(interface {
		extraFields() map[string]json.RawMessage
	})
	if !ok {
		return buf.Bytes(), nil
	}
	return appendExtra(buf.Bytes(), e.extraFields(), recordFields[r.RecordType()])
}

func unmarshalRecord(raw json.RawMessage) (Record, error) {
	var head struct {
		Type RecordType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "":
		return nil, fmt.Errorf("type is required")
	case TypePrescription:
		return decodeAs[Prescription](raw, head.Type)
	case TypeDiagnosticReport:
		return decodeAs[DiagnosticReport](raw, head.Type)
	case TypeLabReport:
		return decodeAs[LabReport](raw, head.Type)
	case TypeImmunization:
		return decodeAs[Immunization](raw, head.Type)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "type")
	return Unknown{Type: head.Type, Fields: fields}, nil
}

type extraSetter[T any] interface {
	*T
	setExtraFields(map[string]json.RawMessage)
}

func decodeAs[T Record, PT extraSetter[T]](raw json.RawMessage, t RecordType) (Record, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	extra, err := splitExtra(raw, recordFields[t])
	if err != nil {
		return nil, err
	}
	PT(&v).setExtraFields(extra)
	return v, nil
}

// recordFields lists the JSON members each known kind models, "type" included.
var recordFields = map[RecordType]map[string]bool{
	TypePrescription:     jsonFields(reflect.TypeFor[Prescription]()),
	TypeDiagnosticReport: jsonFields(reflect.TypeFor[DiagnosticReport]()),
	TypeLabReport:        jsonFields(reflect.TypeFor[LabReport]()),
	TypeImmunization:     jsonFields(reflect.TypeFor[Immunization]()),
}

func jsonFields(t reflect.Type) map[string]bool {
	fields := map[string]bool{"type": true}
	var walk func(reflect.Type)
	walk = func(t reflect.Type) {
		for i := range t.NumField() {
			f := t.Field(i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				walk(f.Type)
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if !f.IsExported() || name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
			fields[name] = true
		}
	}
	walk(t)
	return fields
}

// splitExtra returns the members of obj not named in known, compacted. It
// returns nil when there are none.
func splitExtra(obj []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(obj, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if known[k] {
			continue
		}
		c, err := compact(v)
		if err != nil {
			return nil, err
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = c
	}
	return extra, nil
}

// appendExtra splices extra members into the JSON object obj in key order.
// Members that collide with modeled fields are skipped.
func appendExtra(obj []byte, extra map[string]json.RawMessage, known map[string]bool) ([]byte, error) {
	if len(extra) == 0 {
		return obj, nil
	}
	var buf bytes.Buffer
	buf.Write(obj[:len(obj)-1])
	empty := len(obj) <= 2
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		if known[k] {
			continue
		}
		v := extra[k]
		if !json.Valid(v) {
			return nil, fmt.Errorf("extra member %q is not valid JSON", k)
		}
		if !empty {
			buf.WriteByte(',')
		}
		empty = false
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func compact(v []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
