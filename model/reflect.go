// Package model - Reflection-basierte Parameter-Sammlung
//
// Dieses Modul enthält die Reflection-Logik, die alle *ml.Tensor Felder
// einer Modell-Struktur anhand ihrer cort-Tags zu benannten Parametern
// zusammenfasst.
//
// Hauptkomponenten:
// - collectParameters: Sammelt Parameter rekursiv in Feld-Reihenfolge
// - setBase: Setzt das eingebettete Base-Feld
// - Tag: cort-Tag-Struktur für Parameter-Namen
// - parseTag: Parst cort-Tags aus Struct-Tags

package model

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/cortml/cort/logutil"
	"github.com/cortml/cort/ml"
)

// Tag repräsentiert einen geparsten cort-Tag
type Tag struct {
	name,
	// prefix und suffix werden auf Kind-Tags angewendet
	prefix,
	suffix string
}

// parseTag parst einen cort-Tag-String wie "dense,pre:proj_" in eine Tag-Struktur
func parseTag(s string) (tag Tag) {
	parts := strings.Split(s, ",")
	tag.name = parts[0]
	for _, part := range parts[1:] {
		if value, ok := strings.CutPrefix(part, "pre:"); ok {
			tag.prefix = value
		}
		if value, ok := strings.CutPrefix(part, "suf:"); ok {
			tag.suffix = value
		}
	}

	return
}

var (
	tensorType = reflect.TypeOf((*ml.Tensor)(nil))
	baseType   = reflect.TypeOf(Base{})
)

// collectParameters sammelt alle nicht-nil Tensoren in v. Felder ohne
// cort-Tag tragen nichts zum Namen bei, Slice-Elemente ihren Index.
func collectParameters(v reflect.Value, tags ...Tag) []*ml.Parameter {
	var params []*ml.Parameter

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || f.Type == baseType {
				continue
			}

			tagsCopy := tags
			if tag := f.Tag.Get("cort"); tag != "" {
				if tag == "-" {
					continue
				}
				tagsCopy = append(tagsCopy, parseTag(tag))
			}

			params = append(params, collectParameters(v.Field(i), tagsCopy...)...)
		}
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}

		if v.Type() == tensorType {
			name := buildName(tags)
			logutil.Trace("found parameter", "name", name, "shape", v.Interface().(*ml.Tensor).Shape())
			return []*ml.Parameter{{Name: name, Value: v.Interface().(*ml.Tensor)}}
		}

		return collectParameters(v.Elem(), tags...)
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			params = append(params, collectParameters(v.Index(i), append(tags, Tag{name: strconv.Itoa(i)})...)...)
		}
	}

	return params
}

// buildName verbindet die Tag-Namen mit Punkten. prefix und suffix eines
// Tags gelten fuer den direkt folgenden Namen.
func buildName(tags []Tag) string {
	var names []string
	var prefix, suffix string
	for _, t := range tags {
		if t.name != "" {
			names = append(names, prefix+t.name+suffix)
		}
		prefix, suffix = t.prefix, t.suffix
	}

	return strings.Join(names, ".")
}

// setBase setzt das eingebettete Base-Feld von v
func setBase(v reflect.Value, base Base) {
	t := v.Type()
	for i := range t.NumField() {
		if t.Field(i).Type == baseType && v.Field(i).CanSet() {
			v.Field(i).Set(reflect.ValueOf(base))
			return
		}
	}
}
