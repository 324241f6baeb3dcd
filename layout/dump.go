package layout

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wippyai/capnp-layout/schema"
)

// DumpHeaders names the columns of Rows.
var DumpHeaders = []string{"ordinal", "member", "type", "location", "tag", "default"}

var (
	dumpHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	dumpCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dumpUnionStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("205"))
)

// Summary is a one-line description of a struct's sections.
func Summary(s *Struct) string {
	return fmt.Sprintf("struct %s: %d data words, %d pointers, list encoding %s",
		s.Name, s.DataWords, s.PointerCount, s.ListSize)
}

// Rows describes every field and discriminant of s, fields in ordinal
// order followed by union tags in declaration order.
func Rows(s *Struct) [][]string {
	rows := make([][]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		rows = append(rows, []string{
			fmt.Sprintf("@%d", f.Ordinal),
			f.DisplayPath(),
			f.Type.String(),
			Location(f),
			tagString(f.Discriminant),
			defaultString(f),
		})
	}
	walkUnions(s.Root, nil, func(path []string, u *Union) {
		names := make([]string, len(u.Members))
		for i, m := range u.Members {
			names[i] = m.Name
		}
		ord := ""
		if u.Ordinal != schema.NoOrdinal {
			ord = fmt.Sprintf("@%d", u.Ordinal)
		}
		rows = append(rows, []string{
			ord,
			strings.Join(append(path, "(which)"), "."),
			"UInt16",
			bitRange(u.DiscriminantBitOffset(), 16),
			fmt.Sprintf("%d members", len(u.Members)),
			strings.Join(names, "|"),
		})
	})
	return rows
}

func walkUnions(g *Group, path []string, fn func([]string, *Union)) {
	for _, m := range g.Members {
		switch m.Kind {
		case MemberGroup:
			walkUnions(m.Group, append(path[:len(path):len(path)], m.Name), fn)
		case MemberUnion:
			walkUnion(m.Union, append(path[:len(path):len(path)], m.Name), fn)
		}
	}
	if g.Union != nil {
		walkUnion(g.Union, path, fn)
	}
}

func walkUnion(u *Union, path []string, fn func([]string, *Union)) {
	fn(path, u)
	for _, m := range u.Members {
		if m.Group != nil {
			walkUnions(m.Group, append(path[:len(path):len(path)], m.Name), fn)
		}
	}
}

// Location renders where a field lives: a pointer slot, a bit range in
// the data section, or nothing for Void.
func Location(f *Field) string {
	switch {
	case f.IsPointer():
		return fmt.Sprintf("ptr[%d]", f.Slot())
	case f.IsVoid():
		return "-"
	}
	return bitRange(f.BitOffset(), f.Type.Kind.BitWidth())
}

func bitRange(bit uint64, width uint32) string {
	if width == 1 {
		return fmt.Sprintf("bit %d (byte %d)", bit, bit/8)
	}
	return fmt.Sprintf("bits %d..%d (byte %d)", bit, bit+uint64(width)-1, bit/8)
}

func tagString(tag uint16) string {
	if tag == NoDiscriminant {
		return ""
	}
	return fmt.Sprintf("%d", tag)
}

func defaultString(f *Field) string {
	switch {
	case f.Default == nil:
		return ""
	case f.IsPointer() && f.DefaultBytes != nil:
		return fmt.Sprintf("%s (%d bytes)", schema.Format(f.Default), len(f.DefaultBytes))
	}
	return schema.Format(f.Default)
}

// Dump writes the summary and a table of Rows to w.
func Dump(w io.Writer, s *Struct) error {
	rows := Rows(s)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(DumpHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return dumpHeaderStyle
			case row >= 0 && row < len(rows) && strings.HasSuffix(rows[row][1], "(which)"):
				return dumpUnionStyle
			}
			return dumpCellStyle
		})
	_, err := fmt.Fprintf(w, "%s\n%s\n", Summary(s), t.Render())
	return err
}
