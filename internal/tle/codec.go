package tle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/transform"
)

// LineLength is the fixed width of each element line, checksum included.
const LineLength = 69

// ErrMalformedRecord is returned for element text that violates the format.
var ErrMalformedRecord = errors.New("malformed element record")

// RecordError locates a format violation. Line is 1 or 2 for the element
// lines and 0 for the record as a whole; Column is 1-based.
type RecordError struct {
	Line   int
	Column int
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("tle %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("tle line %d column %d (%s): %s", e.Line, e.Column, e.Field, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

type fieldID int

const (
	fName fieldID = iota
	fCatalog1
	fClassification
	fDesignator
	fEpoch
	fNDot
	fNDDot
	fBStar
	fEphemeris
	fElementNumber
	fCatalog2
	fInclination
	fRAAN
	fEccentricity
	fArgPerigee
	fMeanAnomaly
	fMeanMotion
	fRevolution
	fieldCount
)

// column is one fixed-width field. start and end are 0-based, end exclusive.
type column struct {
	id         fieldID
	name       string
	start, end int
	decode     func(text string, es *ElementSet) error
	encode     func(es *ElementSet) string
}

var (
	line1Columns = []column{
		{fCatalog1, "catalog number", 2, 7, decodeCatalog1, encodeCatalog},
		{fClassification, "classification", 7, 8, decodeClassification, encodeClassification},
		{fDesignator, "international designator", 9, 17, decodeDesignator, encodeDesignator},
		{fEpoch, "epoch", 18, 32, decodeEpoch, encodeEpoch},
		{fNDot, "mean motion derivative", 33, 43, decodeNDot, encodeNDot},
		{fNDDot, "mean motion second derivative", 44, 52, decodeNDDot, encodeNDDot},
		{fBStar, "bstar", 53, 61, decodeBStar, encodeBStar},
		{fEphemeris, "ephemeris type", 62, 63, decodeEphemeris, encodeEphemeris},
		{fElementNumber, "element set number", 64, 68, decodeElementNumber, encodeElementNumber},
	}
	line2Columns = []column{
		{fCatalog2, "catalog number", 2, 7, decodeCatalog2, encodeCatalog},
		{fInclination, "inclination", 8, 16, angleDecoder(&angleInclination), angleEncoder(&angleInclination)},
		{fRAAN, "right ascension of ascending node", 17, 25, angleDecoder(&angleRAAN), angleEncoder(&angleRAAN)},
		{fEccentricity, "eccentricity", 26, 33, decodeEccentricity, encodeEccentricity},
		{fArgPerigee, "argument of perigee", 34, 42, angleDecoder(&angleArgPerigee), angleEncoder(&angleArgPerigee)},
		{fMeanAnomaly, "mean anomaly", 43, 51, angleDecoder(&angleMeanAnomaly), angleEncoder(&angleMeanAnomaly)},
		{fMeanMotion, "mean motion", 52, 63, decodeMeanMotion, encodeMeanMotion},
		{fRevolution, "revolution number", 63, 68, decodeRevolution, encodeRevolution},
	}

	line1Blanks = []int{1, 8, 17, 32, 43, 52, 61, 63}
	line2Blanks = []int{1, 7, 16, 25, 33, 42, 51}
)

// Checksum returns the modulo-10 checksum of the first 68 characters of a
// line: the sum of all digits, with each '-' counting as 1.
func Checksum(line string) int {
	n := len(line)
	if n > LineLength-1 {
		n = LineLength - 1
	}
	sum := 0
	for i := 0; i < n; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// Parse parses a two- or three-line record. A three-line record starts with
// the object name.
func Parse(text string) (ElementSet, error) {
	lines := strings.Split(strings.TrimRight(text, "\r\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	switch len(lines) {
	case 2:
		return ParseLines("", lines[0], lines[1])
	case 3:
		return ParseLines(lines[0], lines[1], lines[2])
	}
	return ElementSet{}, &RecordError{Field: "record", Reason: fmt.Sprintf("want 2 or 3 lines, got %d", len(lines))}
}

// ParseLines parses the element lines of one record. name may be empty.
func ParseLines(name, line1, line2 string) (ElementSet, error) {
	line1 = strings.TrimRight(line1, "\r\n")
	line2 = strings.TrimRight(line2, "\r\n")

	if err := checkLine(1, line1, line1Blanks); err != nil {
		return ElementSet{}, err
	}
	if err := checkLine(2, line2, line2Blanks); err != nil {
		return ElementSet{}, err
	}

	var es ElementSet
	if name != "" {
		es.text[fName] = name
		es.Name = nameOf(name)
	}
	if err := decodeColumns(1, line1, line1Columns, &es); err != nil {
		return ElementSet{}, err
	}
	if err := decodeColumns(2, line2, line2Columns, &es); err != nil {
		return ElementSet{}, err
	}
	return es, nil
}

// nameOf strips padding and the "0 " prefix some catalogs put on name lines.
func nameOf(line string) string {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "0 ") {
		s = strings.TrimSpace(s[2:])
	}
	return s
}

func checkLine(n int, line string, blanks []int) error {
	if len(line) != LineLength {
		return &RecordError{Line: n, Column: 1, Field: "line", Reason: fmt.Sprintf("length %d, want %d", len(line), LineLength)}
	}
	if line[0] != byte('0'+n) {
		return &RecordError{Line: n, Column: 1, Field: "line number", Reason: fmt.Sprintf("got %q, want %q", line[0], '0'+n)}
	}
	for _, col := range blanks {
		if line[col] != ' ' {
			return &RecordError{Line: n, Column: col + 1, Field: "separator", Reason: fmt.Sprintf("got %q, want a space", line[col])}
		}
	}
	c := line[LineLength-1]
	if c < '0' || c > '9' {
		return &RecordError{Line: n, Column: LineLength, Field: "checksum", Reason: fmt.Sprintf("got %q, want a digit", c)}
	}
	if want := Checksum(line); int(c-'0') != want {
		return &RecordError{Line: n, Column: LineLength, Field: "checksum", Reason: fmt.Sprintf("got %c, computed %d", c, want)}
	}
	return nil
}

func decodeColumns(n int, line string, cols []column, es *ElementSet) error {
	for _, c := range cols {
		text := line[c.start:c.end]
		if err := c.decode(text, es); err != nil {
			return &RecordError{Line: n, Column: c.start + 1, Field: c.name, Reason: err.Error()}
		}
		es.text[c.id] = text
	}
	return nil
}

// Format renders the two element lines of es with fresh checksums.
func Format(es ElementSet) (string, string) {
	return formatLine(1, &es, line1Columns), formatLine(2, &es, line2Columns)
}

// Serialize renders es as a record, name line first when es has a name.
// Lines are joined by "\n" with no trailing newline.
func Serialize(es ElementSet) string {
	l1, l2 := Format(es)
	if name := formatName(&es); name != "" {
		return name + "\n" + l1 + "\n" + l2
	}
	return l1 + "\n" + l2
}

func formatName(es *ElementSet) string {
	if raw := es.text[fName]; raw != "" && nameOf(raw) == es.Name {
		return raw
	}
	return es.Name
}

func formatLine(n int, es *ElementSet, cols []column) string {
	buf := []byte(strings.Repeat(" ", LineLength))
	buf[0] = byte('0' + n)
	for _, c := range cols {
		width := c.end - c.start
		text := es.text[c.id]
		if text == "" || !describes(c, text, es) {
			text = c.encode(es)
		}
		copy(buf[c.start:c.end], fit(text, width))
	}
	buf[LineLength-1] = byte('0' + Checksum(string(buf)))
	return string(buf)
}

// describes reports whether text still decodes to the values held in es.
func describes(c column, text string, es *ElementSet) bool {
	rt := *es
	if err := c.decode(text, &rt); err != nil {
		return false
	}
	return rt == *es
}

func fit(s string, width int) string {
	if len(s) > width {
		return s[len(s)-width:]
	}
	if len(s) < width {
		return strings.Repeat(" ", width-len(s)) + s
	}
	return s
}

// Catalog numbers above 99999 use the Alpha-5 scheme: a leading letter
// (I and O excluded) stands for 10-33.
const alpha5Letters = "ABCDEFGHJKLMNPQRSTUVWXYZ"

func parseCatalog(text string) (int, error) {
	s := strings.TrimLeft(text, " ")
	if s == "" {
		return 0, errors.New("empty")
	}
	prefix := 0
	if i := strings.IndexByte(alpha5Letters, s[0]); i >= 0 {
		if len(s) != 5 {
			return 0, fmt.Errorf("alpha-5 number %q must be 5 characters", text)
		}
		prefix = (i + 10) * 10000
		s = s[1:]
	}
	if !allDigits(s) {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return prefix + n, nil
}

func decodeCatalog1(text string, es *ElementSet) error {
	n, err := parseCatalog(text)
	if err != nil {
		return err
	}
	es.CatalogNumber = n
	return nil
}

func decodeCatalog2(text string, es *ElementSet) error {
	n, err := parseCatalog(text)
	if err != nil {
		return err
	}
	if n != es.CatalogNumber {
		return fmt.Errorf("catalog number %d does not match line 1 (%d)", n, es.CatalogNumber)
	}
	return nil
}

func encodeCatalog(es *ElementSet) string {
	n := es.CatalogNumber
	if n < 100000 {
		return fmt.Sprintf("%05d", n)
	}
	i := n/10000 - 10
	if i >= len(alpha5Letters) {
		i = len(alpha5Letters) - 1
	}
	return fmt.Sprintf("%c%04d", alpha5Letters[i], n%10000)
}

func decodeClassification(text string, es *ElementSet) error {
	c := text[0]
	if c != ' ' && (c < 'A' || c > 'Z') {
		return fmt.Errorf("got %q, want a letter", c)
	}
	es.Classification = c
	return nil
}

func encodeClassification(es *ElementSet) string {
	if es.Classification == 0 {
		return "U"
	}
	return string(es.Classification)
}

func decodeDesignator(text string, es *ElementSet) error {
	for i := 0; i < len(text); i++ {
		if text[i] < ' ' || text[i] > '~' {
			return fmt.Errorf("non-printable character %q", text[i])
		}
	}
	es.Designator = strings.TrimRight(text, " ")
	return nil
}

func encodeDesignator(es *ElementSet) string {
	d := es.Designator
	if len(d) > 8 {
		d = d[:8]
	}
	return fmt.Sprintf("%-8s", d)
}

// decodeEpoch reads YYDDD.DDDDDDDD. Years 57-99 are 1900s, 00-56 are 2000s.
func decodeEpoch(text string, es *ElementSet) error {
	if !allDigits(text[:2]) {
		return fmt.Errorf("year %q is not a number", text[:2])
	}
	yy, _ := strconv.Atoi(text[:2])
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	day, err := strconv.ParseFloat(strings.TrimSpace(text[2:]), 64)
	if err != nil {
		return fmt.Errorf("day %q: %w", text[2:], err)
	}
	days := 365
	if time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay() == 366 {
		days = 366
	}
	if day < 1 || day >= float64(days+1) {
		return fmt.Errorf("day %g out of range for %d (1-%d)", day, year, days)
	}
	es.EpochYear = year
	es.EpochDay = day
	es.Epoch = epochFromYearDay(year, day)
	return nil
}

func epochFromYearDay(year int, day float64) transform.Epoch {
	jan1 := transform.NewEpoch(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
	return jan1.Add((day - 1) * 86400.0)
}

func encodeEpoch(es *ElementSet) string {
	return fmt.Sprintf("%02d%012.8f", es.EpochYear%100, es.EpochDay)
}

func decodeSignedDecimal(text string) (float64, error) {
	s := strings.TrimSpace(text)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	if math.Abs(v) >= 1 {
		return 0, fmt.Errorf("%g out of range (-1, 1)", v)
	}
	return v, nil
}

func decodeNDot(text string, es *ElementSet) error {
	v, err := decodeSignedDecimal(text)
	if err != nil {
		return err
	}
	es.MeanMotionDot = v
	return nil
}

// encodeNDot renders ṅ/2 as a sign and a decimal with the leading zero dropped.
func encodeNDot(es *ElementSet) string {
	sign := " "
	if es.MeanMotionDot < 0 {
		sign = "-"
	}
	body := fmt.Sprintf("%.8f", math.Abs(es.MeanMotionDot))
	return sign + strings.TrimPrefix(body, "0")
}

// parseImpliedDecimal reads the "SMMMMMSE" notation: ±0.MMMMM × 10^±E.
func parseImpliedDecimal(text string) (float64, error) {
	if len(text) != 8 {
		return 0, fmt.Errorf("%q: want 8 characters", text)
	}
	sign := ""
	switch text[0] {
	case '-':
		sign = "-"
	case ' ', '+':
	default:
		return 0, fmt.Errorf("%q: bad sign %q", text, text[0])
	}
	mant := text[1:6]
	if !allDigits(mant) {
		return 0, fmt.Errorf("%q: mantissa is not a number", text)
	}
	expSign := "+"
	switch text[6] {
	case '-':
		expSign = "-"
	case '+', ' ':
	default:
		return 0, fmt.Errorf("%q: bad exponent sign %q", text, text[6])
	}
	if !allDigits(text[7:]) {
		return 0, fmt.Errorf("%q: exponent is not a digit", text)
	}
	return strconv.ParseFloat(sign+"0."+mant+"e"+expSign+text[7:], 64)
}

func formatImpliedDecimal(v float64) string {
	a := math.Abs(v)
	if a == 0 || math.IsNaN(a) {
		return " 00000-0"
	}
	sign := byte(' ')
	if v < 0 {
		sign = '-'
	}
	exp := int(math.Floor(math.Log10(a))) + 1
	mant := int(math.Round(a / math.Pow(10, float64(exp)) * 1e5))
	if mant >= 100000 {
		mant /= 10
		exp++
	}
	switch {
	case exp > 9:
		mant, exp = 99999, 9
	case exp < -9:
		return " 00000-0"
	}
	expSign := byte('+')
	if exp < 0 {
		expSign = '-'
		exp = -exp
	}
	return fmt.Sprintf("%c%05d%c%d", sign, mant, expSign, exp)
}

func decodeNDDot(text string, es *ElementSet) error {
	v, err := parseImpliedDecimal(text)
	if err != nil {
		return err
	}
	es.MeanMotionDDot = v
	return nil
}

func encodeNDDot(es *ElementSet) string { return formatImpliedDecimal(es.MeanMotionDDot) }

func decodeBStar(text string, es *ElementSet) error {
	v, err := parseImpliedDecimal(text)
	if err != nil {
		return err
	}
	es.BStar = v
	return nil
}

func encodeBStar(es *ElementSet) string { return formatImpliedDecimal(es.BStar) }

func decodeEphemeris(text string, es *ElementSet) error {
	c := text[0]
	if c != ' ' && (c < '0' || c > '9') {
		return fmt.Errorf("got %q, want a digit", c)
	}
	es.EphemerisType = c
	return nil
}

func encodeEphemeris(es *ElementSet) string {
	if es.EphemerisType == 0 {
		return "0"
	}
	return string(es.EphemerisType)
}

func decodeInt(text string) (int, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, nil
	}
	if !allDigits(s) {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	return strconv.Atoi(s)
}

func decodeElementNumber(text string, es *ElementSet) error {
	n, err := decodeInt(text)
	if err != nil {
		return err
	}
	es.ElementNumber = n
	return nil
}

func encodeElementNumber(es *ElementSet) string {
	return fmt.Sprintf("%4d", es.ElementNumber%10000)
}

// angle binds an angular field of ElementSet stored in radians.
type angle struct {
	get       func(es *ElementSet) float64
	set       func(es *ElementSet, rad float64)
	normalize bool
	max       float64 // degrees, inclusive; 0 means unbounded
}

var (
	angleInclination = angle{
		get: func(es *ElementSet) float64 { return es.Inclination },
		set: func(es *ElementSet, v float64) { es.Inclination = v },
		max: 180,
	}
	angleRAAN = angle{
		get:       func(es *ElementSet) float64 { return es.RAAN },
		set:       func(es *ElementSet, v float64) { es.RAAN = v },
		normalize: true,
	}
	angleArgPerigee = angle{
		get:       func(es *ElementSet) float64 { return es.ArgPerigee },
		set:       func(es *ElementSet, v float64) { es.ArgPerigee = v },
		normalize: true,
	}
	angleMeanAnomaly = angle{
		get:       func(es *ElementSet) float64 { return es.MeanAnomaly },
		set:       func(es *ElementSet, v float64) { es.MeanAnomaly = v },
		normalize: true,
	}
)

func angleDecoder(a *angle) func(string, *ElementSet) error {
	return func(text string, es *ElementSet) error {
		deg, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", text)
		}
		if deg < 0 || (a.max > 0 && deg > a.max) || deg > 360 {
			return fmt.Errorf("%g degrees out of range", deg)
		}
		rad := deg * math.Pi / 180.0
		if a.normalize {
			rad = orbit.NormalizeAngle(rad)
		}
		a.set(es, rad)
		return nil
	}
}

func angleEncoder(a *angle) func(*ElementSet) string {
	return func(es *ElementSet) string {
		return fmt.Sprintf("%8.4f", a.get(es)*180.0/math.Pi)
	}
}

func decodeEccentricity(text string, es *ElementSet) error {
	if !allDigits(text) {
		return fmt.Errorf("%q is not a number", text)
	}
	v, err := strconv.ParseFloat("0."+text, 64)
	if err != nil {
		return err
	}
	es.Eccentricity = v
	return nil
}

func encodeEccentricity(es *ElementSet) string {
	n := int(math.Round(es.Eccentricity * 1e7))
	if n > 9999999 {
		n = 9999999
	}
	return fmt.Sprintf("%07d", n)
}

func decodeMeanMotion(text string, es *ElementSet) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", text)
	}
	if v <= 0 {
		return fmt.Errorf("%g rev/day must be positive", v)
	}
	es.MeanMotion = v
	return nil
}

func encodeMeanMotion(es *ElementSet) string {
	return fmt.Sprintf("%11.8f", es.MeanMotion)
}

func decodeRevolution(text string, es *ElementSet) error {
	n, err := decodeInt(text)
	if err != nil {
		return err
	}
	es.RevolutionNumber = n
	return nil
}

func encodeRevolution(es *ElementSet) string {
	return fmt.Sprintf("%5d", es.RevolutionNumber%100000)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
