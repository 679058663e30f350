package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSV decodes a CSV batch into canonical records, one per row. The first row
// must be a header naming the columns. Missing or empty cells fall back to
// the default table; a single unparseable numeric cell fails the whole batch
// so downstream features are never silently corrupted.
func CSV(r io.Reader) ([]CanonicalRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &ValidationError{Reason: "reading csv body: " + err.Error()}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Reason: "empty csv body"}
	}
	if !utf8.Valid(raw) {
		return nil, &ValidationError{Reason: "csv body is not valid UTF-8"}
	}

	// Strip a UTF-8 BOM if present; Excel exports carry one.
	utf8Reader := transform.NewReader(bytes.NewReader(raw), unicode.UTF8BOM.NewDecoder())
	reader := csv.NewReader(utf8Reader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &ValidationError{Reason: "reading csv header: " + err.Error()}
	}

	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var records []CanonicalRecord
	row := 1
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("csv row %d: %v", row, err)}
		}

		rec, err := fillRow(cols, cells, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		row++
	}

	if len(records) == 0 {
		return nil, &ValidationError{Reason: "csv contains no data rows"}
	}
	return records, nil
}

// mapHeader resolves each header cell to a known column; unknown headers are
// ignored so extra export columns don't break uploads.
func mapHeader(header []string) (map[int]column, error) {
	cols := make(map[int]column)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for _, c := range columns {
			if c.name == name {
				cols[i] = c
				break
			}
		}
	}
	if len(cols) == 0 {
		return nil, &ValidationError{Reason: "csv header matches no known columns"}
	}
	return cols, nil
}

func fillRow(cols map[int]column, cells []string, row int) (CanonicalRecord, error) {
	var in RecordInput
	for i, cell := range cells {
		c, ok := cols[i]
		if !ok {
			continue
		}
		cell = strings.TrimSpace(cell)
		if cell == "" || strings.EqualFold(cell, "null") {
			continue // absent: default-filled below
		}

		switch c.kind {
		case colNumeric:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return CanonicalRecord{}, &ValidationError{
					Field:  c.name,
					Reason: fmt.Sprintf("csv row %d: %q is not numeric", row, cell),
				}
			}
			in.setNumeric(c.name, v)
		case colBool:
			v, err := strconv.ParseBool(cell)
			if err != nil {
				return CanonicalRecord{}, &ValidationError{
					Field:  c.name,
					Reason: fmt.Sprintf("csv row %d: %q is not a boolean", row, cell),
				}
			}
			in.setBool(c.name, v)
		case colText:
			in.setText(c.name, cell)
		}
	}
	return Fill(in), nil
}

func (in *RecordInput) setNumeric(name string, v float64) {
	i := int(v)
	switch name {
	case "post_score":
		in.PostScore = &i
	case "comment_score":
		in.CommentScore = &i
	case "upvote_ratio":
		in.UpvoteRatio = &v
	case "total_awards_received":
		in.TotalAwardsReceived = &i
	case "post_length":
		in.PostLength = &i
	case "sentiment":
		in.Sentiment = &v
	case "post_num_comments":
		in.PostNumComments = &i
	}
}

func (in *RecordInput) setBool(name string, v bool) {
	if name == "over_18" {
		in.Over18 = &v
	}
}

func (in *RecordInput) setText(name, v string) {
	switch name {
	case "title":
		in.Title = &v
	case "subreddit":
		in.Subreddit = &v
	case "post_flair":
		in.PostFlair = &v
	case "cleaned_post_body":
		in.CleanedPostBody = &v
	case "cleaned_comment_body":
		in.CleanedCommentBody = &v
	}
}
