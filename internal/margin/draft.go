package margin

// Draft accumulates field values one at a time. The zero value is ready to use and it serializes
// to JSON so it can live in a session store.
type Draft struct {
	Values map[Field]float64 `json:"values,omitempty"`
}

// Set parses text and stores the value. Blank text clears an optional field and is an error for a
// required one.
func (d *Draft) Set(field Field, text string) *FieldError {
	if !field.Valid() {
		return &FieldError{Field: field, Kind: ErrMissingOrInvalid, Message: "Неизвестное поле"}
	}

	v, present, fe := parseField(field, text)
	if fe != nil {
		return fe
	}
	if !present {
		if field.Required() {
			return newFieldError(field, ErrMissingOrInvalid)
		}
		d.Clear(field)
		return nil
	}

	d.put(field, v)
	return nil
}

// SetValue stores an already numeric value after range checking it.
func (d *Draft) SetValue(field Field, v float64) *FieldError {
	if !field.Valid() {
		return &FieldError{Field: field, Kind: ErrMissingOrInvalid, Message: "Неизвестное поле"}
	}
	if fe := checkValue(field, v); fe != nil {
		return fe
	}
	d.put(field, v)
	return nil
}

func (d *Draft) put(field Field, v float64) {
	if d.Values == nil {
		d.Values = make(map[Field]float64, len(Fields))
	}
	d.Values[field] = v
}

func (d Draft) Has(field Field) bool {
	_, ok := d.Values[field]
	return ok
}

func (d Draft) Value(field Field) (float64, bool) {
	v, ok := d.Values[field]
	return v, ok
}

func (d *Draft) Clear(fields ...Field) {
	for _, f := range fields {
		delete(d.Values, f)
	}
}

func (d *Draft) Reset() {
	d.Values = nil
}

// Input resolves the draft. Missing required fields are reported; missing optional ones become 0.
func (d Draft) Input() (Input, FieldErrors) {
	var (
		in   Input
		errs FieldErrors
	)

	for _, field := range Fields {
		v, ok := d.Values[field]
		if !ok {
			if field.Required() {
				errs = append(errs, newFieldError(field, ErrMissingOrInvalid))
			}
			continue
		}
		if fe := checkValue(field, v); fe != nil {
			errs = append(errs, fe)
			continue
		}
		in.set(field, v)
	}

	if len(errs) > 0 {
		return Input{}, errs
	}
	return in, nil
}
