package ippserver

// Helpers for building and reading goipp attribute groups (component C5's
// codec-adjacent glue): every operation handler in dispatch.go goes through
// these rather than touching goipp.Attributes directly.

import (
	"fmt"

	"github.com/OpenPrinting/goipp"
)

// adder returns a closure that appends one attribute (possibly
// multi-valued) to attrs, matching the reference ipp_utils.go adder's
// shape.
func adder(attrs *goipp.Attributes) func(name string, tag goipp.Tag, values ...goipp.Value) {
	return func(name string, tag goipp.Tag, values ...goipp.Value) {
		if len(values) == 0 {
			return
		}
		attr := goipp.MakeAttribute(name, tag, values[0])
		for _, v := range values[1:] {
			attr.Values.Add(tag, v)
		}
		attrs.Add(attr)
	}
}

func stringsToValues[S ~[]E, E ~string](strs S) []goipp.Value {
	values := make([]goipp.Value, len(strs))
	for i, str := range strs {
		values[i] = goipp.String(str)
	}
	return values
}

func intsToValues(ints []int) []goipp.Value {
	values := make([]goipp.Value, len(ints))
	for i, n := range ints {
		values[i] = goipp.Integer(n)
	}
	return values
}

// findAttr locates an attribute by name in a flat Attributes slice.
func findAttr(attrs goipp.Attributes, name string) (goipp.Values, bool) {
	for _, attr := range attrs {
		if attr.Name == name && len(attr.Values) > 0 {
			return attr.Values, true
		}
	}
	return nil, false
}

// extractValue pulls a single typed value out of attrs by name, the way the
// reference ipp_utils.go's extractValue does.
func extractValue[T any](attrs goipp.Attributes, name string) (T, error) {
	var zero T
	vv, ok := findAttr(attrs, name)
	if !ok {
		return zero, fmt.Errorf("attribute %q not found", name)
	}
	v := vv[0].V
	if val, ok := v.(T); ok {
		return val, nil
	}
	return zero, fmt.Errorf("attribute %q is not of type %T: %T", name, zero, v)
}

// extractValueDefault is extractValue with a fallback for a missing or
// mistyped attribute, used throughout dispatch.go for optional request
// attributes that have spec-mandated defaults.
func extractValueDefault[T any](attrs goipp.Attributes, name string, def T) T {
	v, err := extractValue[T](attrs, name)
	if err != nil {
		return def
	}
	return v
}

// requestedAttributeNames reads the "requested-attributes" operation
// attribute as a plain []string, or nil if absent/"all" (spec §4.2
// Get-Printer-Attributes: "unknown names dropped, 'all' = full set").
func requestedAttributeNames(op goipp.Attributes) []string {
	vv, ok := findAttr(op, "requested-attributes")
	if !ok {
		return nil
	}
	names := make([]string, 0, len(vv))
	for _, v := range vv {
		s, ok := v.V.(goipp.String)
		if !ok {
			continue
		}
		if string(s) == "all" {
			return nil
		}
		names = append(names, string(s))
	}
	return names
}

func wantsAttribute(requested []string, name string) bool {
	if requested == nil {
		return true
	}
	for _, r := range requested {
		if r == name {
			return true
		}
	}
	return false
}

// baseResponse builds a response message carrying the mandatory
// operation-attributes group (charset then natural-language, per spec
// §4.1's serialiser contract: "always emits operation-attrs group with
// attributes-charset=utf-8 then attributes-natural-language=en first").
func baseResponse(status goipp.Status, requestID uint32) *goipp.Message {
	m := goipp.NewResponse(goipp.MakeVersion(2, 1), status, requestID)
	add := adder(m.Operation())
	add("attributes-charset", goipp.TagCharset, goipp.String("utf-8"))
	add("attributes-natural-language", goipp.TagLanguage, goipp.String("en"))
	return m
}
