package display

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// TableFormatter builds text tables
type TableFormatter interface {
	SetHeaders(headers []string)
	AddRow(row []string)
	SetColumnAlignment(column int, alignment Alignment)
	SetStyle(style TableStyle)
	Render() string
	RenderTo(writer io.Writer)
}

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// TableStyle defines the visual style of a table
type TableStyle struct {
	Name            string
	Border          BorderStyle
	HeaderSeparator bool
	Padding         int
	// MaxWidth limits the rendered width, 0 uses the terminal width
	MaxWidth int
}

// BorderStyle defines table border characters
type BorderStyle struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	Cross       string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
}

var (
	ASCIIBorderStyle = BorderStyle{
		TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		Horizontal: "-", Vertical: "|",
		Cross: "+", TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
	}

	RoundedBorderStyle = BorderStyle{
		TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
		Horizontal: "─", Vertical: "│",
		Cross: "┼", TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
	}

	NoBorderStyle = BorderStyle{}
)

var (
	DefaultTableStyle = TableStyle{Name: "default", Border: ASCIIBorderStyle, HeaderSeparator: true, Padding: 1}
	RoundedTableStyle = TableStyle{Name: "rounded", Border: RoundedBorderStyle, HeaderSeparator: true, Padding: 1}
	CompactTableStyle = TableStyle{Name: "compact", Border: NoBorderStyle, Padding: 1}
)

type tableFormatter struct {
	headers       []string
	rows          [][]string
	alignments    map[int]Alignment
	style         TableStyle
	colorSystem   ColorSystem
	theme         ColorTheme
	terminalWidth int
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(colorSystem ColorSystem, theme ColorTheme) TableFormatter {
	return &tableFormatter{
		alignments:    make(map[int]Alignment),
		style:         DefaultTableStyle,
		colorSystem:   colorSystem,
		theme:         theme,
		terminalWidth: getTerminalWidth(),
	}
}

// SetHeaders sets the table headers
func (tf *tableFormatter) SetHeaders(headers []string) {
	tf.headers = headers
}

// AddRow adds a row to the table
func (tf *tableFormatter) AddRow(row []string) {
	tf.rows = append(tf.rows, row)
}

// SetColumnAlignment sets the alignment for a specific column
func (tf *tableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

// SetStyle sets the table style
func (tf *tableFormatter) SetStyle(style TableStyle) {
	tf.style = style
}

// Render returns the formatted table
func (tf *tableFormatter) Render() string {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return ""
	}

	widths := tf.fitWidths(tf.columnWidths())
	border := tf.style.Border
	hasBorder := border.Horizontal != ""

	var out strings.Builder
	if hasBorder {
		out.WriteString(tf.rule(widths, border.TopLeft, border.TopTee, border.TopRight))
	}
	if len(tf.headers) > 0 {
		out.WriteString(tf.renderRow(tf.headers, widths, true))
		if hasBorder && tf.style.HeaderSeparator {
			out.WriteString(tf.rule(widths, border.LeftTee, border.Cross, border.RightTee))
		}
	}
	for _, row := range tf.rows {
		out.WriteString(tf.renderRow(row, widths, false))
	}
	if hasBorder {
		out.WriteString(tf.rule(widths, border.BottomLeft, border.BottomTee, border.BottomRight))
	}

	return out.String()
}

// RenderTo renders the table to writer
func (tf *tableFormatter) RenderTo(writer io.Writer) {
	fmt.Fprint(writer, tf.Render())
}

// columnWidths returns the content width of every column
func (tf *tableFormatter) columnWidths() []int {
	cols := len(tf.headers)
	for _, row := range tf.rows {
		if len(row) > cols {
			cols = len(row)
		}
	}

	widths := make([]int, cols)
	measure := func(row []string) {
		for i, cell := range row {
			if n := visibleWidth(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(tf.headers)
	for _, row := range tf.rows {
		measure(row)
	}
	return widths
}

// fitWidths shrinks the widest columns until the table fits
func (tf *tableFormatter) fitWidths(widths []int) []int {
	maxWidth := tf.style.MaxWidth
	if tf.terminalWidth > 0 && (maxWidth == 0 || tf.terminalWidth < maxWidth) {
		maxWidth = tf.terminalWidth
	}
	if maxWidth <= 0 {
		return widths
	}

	const minWidth = 4
	for tf.totalWidth(widths) > maxWidth {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func (tf *tableFormatter) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + tf.style.Padding*2
	}
	if tf.style.Border.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (tf *tableFormatter) rule(widths []int, left, mid, right string) string {
	var out strings.Builder
	out.WriteString(left)
	for i, w := range widths {
		out.WriteString(strings.Repeat(tf.style.Border.Horizontal, w+tf.style.Padding*2))
		if i < len(widths)-1 {
			out.WriteString(mid)
		}
	}
	out.WriteString(right)
	out.WriteString("\n")
	return out.String()
}

func (tf *tableFormatter) renderRow(row []string, widths []int, header bool) string {
	var out strings.Builder
	out.WriteString(tf.style.Border.Vertical)
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		out.WriteString(tf.formatCell(cell, w, tf.alignments[i], header))
		out.WriteString(tf.style.Border.Vertical)
	}
	return strings.TrimRight(out.String(), " ") + "\n"
}

// formatCell truncates and pads content to width
func (tf *tableFormatter) formatCell(content string, width int, alignment Alignment, header bool) string {
	if visibleWidth(content) > width {
		runes := []rune(ansiPattern.ReplaceAllString(content, ""))
		if width > 3 {
			content = string(runes[:width-3]) + "..."
		} else {
			content = string(runes[:width])
		}
	}

	gap := width - visibleWidth(content)
	var left, right int
	switch alignment {
	case AlignCenter:
		left = gap / 2
		right = gap - left
	case AlignRight:
		left = gap
	default:
		right = gap
	}

	if header && tf.colorSystem != nil && tf.colorSystem.IsColorSupported() {
		content = tf.colorSystem.Colorize(content, tf.theme.Primary)
	}

	pad := strings.Repeat(" ", tf.style.Padding)
	return pad + strings.Repeat(" ", left) + content + strings.Repeat(" ", right) + pad
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visibleWidth counts the runes of s that occupy a terminal cell
func visibleWidth(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}

// getTerminalWidth returns the width of the terminal on stdout, 0 when not a terminal
func getTerminalWidth() int {
	width, _, err := term.GetSize(1)
	if err != nil {
		return 0
	}
	return width
}
