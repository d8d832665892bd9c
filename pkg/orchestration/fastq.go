package orchestration

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"regexp"

	"github.com/dukex/portalflow/pkg/models"
)

const (
	samplePattern  = `(?:PRJ|CCR|MDX|TGX)\d{6}|(?:NTC|PTC)_\w+`
	libraryPattern = `L\d{7}|L(?:PRJ|CCR|MDX|TGX)\d{6}|L(?:NTC|PTC)_\w+`
)

var (
	uniqueIDRegex = regexp.MustCompile(`^(` + samplePattern + `)_((?:` + libraryPattern + `)(?:_topup\d?|_rerun\d?)?)$`)
	topupRegex    = regexp.MustCompile(`_topup\d?`)
	rerunRegex    = regexp.MustCompile(`_rerun\d?`)

	sampleSheetRegex = regexp.MustCompile(`^(?:SampleSheet\.)(\S+)(?:\.csv)$`)
)

var (
	fastqListRowKeys = []string{"main/fastq_list_rows", "fastq_list_rows"}
	splitSheetKeys   = []string{"main/split_sheets", "split_sheets"}
)

// ctTSOSampleSheetAssays are the samplesheet midfixes used to split ctTSO samples.
var ctTSOSampleSheetAssays = map[string]bool{
	"ctDNA_ctTSO": true,
	"ctTSO_ctTSO": true,
}

// lookupOutput returns the first key of keys present in the workflow output.
func lookupOutput(output *string, keys []string) (json.RawMessage, error) {
	if output == nil || *output == "" {
		return nil, fmt.Errorf("%w: empty output", ErrUnexpectedOutputFormat)
	}

	var fields map[string]json.RawMessage

	err := json.Unmarshal([]byte(*output), &fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedOutputFormat, err)
	}

	for _, key := range keys {
		if value, ok := fields[key]; ok {
			return value, nil
		}
	}

	return nil, fmt.Errorf("%w: none of %v found", ErrUnexpectedOutputFormat, keys)
}

// ParseFastqListRows extracts the fastq list rows of a BCL conversion output.
func ParseFastqListRows(output *string) ([]models.RawFastqListRow, error) {
	raw, err := lookupOutput(output, fastqListRowKeys)
	if err != nil {
		return nil, err
	}

	var rows []models.RawFastqListRow

	err = json.Unmarshal(raw, &rows)
	if err != nil {
		return nil, fmt.Errorf("%w: fastq list rows: %w", ErrUnexpectedOutputFormat, err)
	}

	return rows, nil
}

// ParseSplitSheets extracts the split samplesheet locations of a BCL conversion output.
func ParseSplitSheets(output *string) ([]string, error) {
	raw, err := lookupOutput(output, splitSheetKeys)
	if err != nil {
		return nil, err
	}

	var sheets []models.FileLocation

	err = json.Unmarshal(raw, &sheets)
	if err != nil {
		return nil, fmt.Errorf("%w: split sheets: %w", ErrUnexpectedOutputFormat, err)
	}

	locations := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		locations = append(locations, string(sheet))
	}

	return locations, nil
}

// CanonicalizeFastqListRows rewrites demultiplexed rows so that reruns and topups of one library
// share the same rglb, and every rgid is unique across sequencing runs. Rows whose rgsm is not
// a sample_library id are dropped with a warning.
func CanonicalizeFastqListRows(rows []models.RawFastqListRow, seqName string, logger *slog.Logger) []models.FastqListRow {
	canonical := make([]models.FastqListRow, 0, len(rows))

	for _, row := range rows {
		match := uniqueIDRegex.FindStringSubmatch(row.RGSM)
		if match == nil {
			logger.Warn("skipping fastq list row with unrecognised rgsm", "rgsm", row.RGSM, "rgid", row.RGID)

			continue
		}

		library := topupRegex.ReplaceAllString(match[2], "")
		library = rerunRegex.ReplaceAllString(library, "")

		canonicalRow := models.FastqListRow{
			RGID:  row.RGID + "." + seqName + "." + row.RGSM,
			RGSM:  match[1],
			RGLB:  library,
			Lane:  row.Lane,
			Read1: string(row.Read1),
		}

		if row.Read2 != "" {
			read2 := string(row.Read2)
			canonicalRow.Read2 = &read2
		}

		canonical = append(canonical, canonicalRow)
	}

	return canonical
}

// LibraryGroup is the set of fastq list rows sharing one canonical library id.
type LibraryGroup struct {
	LibraryID string
	Rows      []models.FastqListRow
}

// GroupByLibrary groups rows by rglb. Groups follow the first appearance of each library and
// rows keep their relative order inside a group.
func GroupByLibrary(rows []models.FastqListRow) []*LibraryGroup {
	var groups []*LibraryGroup

	index := map[string]*LibraryGroup{}

	for _, row := range rows {
		group, ok := index[row.RGLB]
		if !ok {
			group = &LibraryGroup{LibraryID: row.RGLB}
			index[row.RGLB] = group
			groups = append(groups, group)
		}

		group.Rows = append(group.Rows, row)
	}

	return groups
}

// SampleName returns the single rgsm of the group.
func (g *LibraryGroup) SampleName() (string, error) {
	return exactlyOne(g, "rgsm", func(row models.FastqListRow) string { return row.RGSM })
}

// SampleSheetSampleID returns the single original sample id, the rgid part after the last dot.
func (g *LibraryGroup) SampleSheetSampleID() (string, error) {
	return exactlyOne(g, "samplesheet sample id", func(row models.FastqListRow) string {
		return row.RGID[lastDot(row.RGID)+1:]
	})
}

func (g *LibraryGroup) JobRows() []models.JobFastqListRow {
	rows := make([]models.JobFastqListRow, 0, len(g.Rows))
	for _, row := range g.Rows {
		rows = append(rows, row.ToJob())
	}

	return rows
}

func exactlyOne(g *LibraryGroup, field string, value func(models.FastqListRow) string) (string, error) {
	var distinct []string

	seen := map[string]bool{}

	for _, row := range g.Rows {
		v := value(row)
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}

	if len(distinct) != 1 {
		return "", fmt.Errorf("%w: library %s has %d distinct %s values %v", ErrAmbiguousGroup, g.LibraryID, len(distinct), field, distinct)
	}

	return distinct[0], nil
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}

	return -1
}

// ctTSOSampleSheet picks the first split samplesheet whose assay is a ctTSO assay.
func ctTSOSampleSheet(locations []string) (string, bool) {
	for _, location := range locations {
		match := sampleSheetRegex.FindStringSubmatch(path.Base(location))
		if match == nil {
			continue
		}

		if ctTSOSampleSheetAssays[match[1]] {
			return location, true
		}
	}

	return "", false
}
