// Package normalize converts inbound payloads into the canonical,
// fully-defaulted records the model consumes.
package normalize

import (
	"bytes"
	"encoding/json"
)

// CanonicalRecord is one fully-defaulted structured input. The model needs a
// complete fixed-width feature vector, so no field is ever left unset.
type CanonicalRecord struct {
	Title               string  `json:"title"`
	Subreddit           string  `json:"subreddit"`
	PostScore           int     `json:"post_score"`
	CommentScore        int     `json:"comment_score"`
	UpvoteRatio         float64 `json:"upvote_ratio"`
	TotalAwardsReceived int     `json:"total_awards_received"`
	PostLength          int     `json:"post_length"`
	PostFlair           string  `json:"post_flair"`
	Over18              bool    `json:"over_18"`
	Sentiment           float64 `json:"sentiment"`
	CleanedPostBody     string  `json:"cleaned_post_body"`
	CleanedCommentBody  string  `json:"cleaned_comment_body"`
	PostNumComments     int     `json:"post_num_comments"`
}

type colKind int

const (
	colNumeric colKind = iota
	colText
	colBool
)

type column struct {
	name    string
	kind    colKind
	defval  float64 // numeric default; text defaults to "", bool to false
	feature bool    // participates in the feature vector
}

// columns is the single declarative default-fill table. Order matters: it
// fixes both the CSV header vocabulary and the feature vector layout.
var columns = []column{
	{name: "title", kind: colText},
	{name: "subreddit", kind: colText},
	{name: "post_score", kind: colNumeric, defval: 0, feature: true},
	{name: "comment_score", kind: colNumeric, defval: 0, feature: true},
	{name: "upvote_ratio", kind: colNumeric, defval: 0.5, feature: true},
	{name: "total_awards_received", kind: colNumeric, defval: 0, feature: true},
	{name: "post_length", kind: colNumeric, defval: 0, feature: true},
	{name: "post_flair", kind: colText},
	{name: "over_18", kind: colBool, feature: true},
	{name: "sentiment", kind: colNumeric, defval: 0.0, feature: true},
	{name: "cleaned_post_body", kind: colText},
	{name: "cleaned_comment_body", kind: colText},
	{name: "post_num_comments", kind: colNumeric, defval: 0, feature: true},
}

// FeatureCount is the width of the vector Features returns.
var FeatureCount = func() int {
	n := 0
	for _, c := range columns {
		if c.feature {
			n++
		}
	}
	return n
}()

// NumericDefault returns the documented default for a numeric column.
func NumericDefault(name string) float64 {
	for _, c := range columns {
		if c.name == name {
			return c.defval
		}
	}
	return 0
}

// Features renders the record as the fixed-width feature vector, numeric
// columns in table order with over_18 encoded as 0/1.
func (r CanonicalRecord) Features() []float64 {
	features := make([]float64, 0, FeatureCount)
	for _, c := range columns {
		if !c.feature {
			continue
		}
		var v float64
		switch c.name {
		case "post_score":
			v = float64(r.PostScore)
		case "comment_score":
			v = float64(r.CommentScore)
		case "upvote_ratio":
			v = r.UpvoteRatio
		case "total_awards_received":
			v = float64(r.TotalAwardsReceived)
		case "post_length":
			v = float64(r.PostLength)
		case "over_18":
			if r.Over18 {
				v = 1
			}
		case "sentiment":
			v = r.Sentiment
		case "post_num_comments":
			v = float64(r.PostNumComments)
		}
		features = append(features, v)
	}
	return features
}

// RecordInput is a partially populated structured record as received on the
// wire. Pointer fields distinguish absent/null from explicit zero.
type RecordInput struct {
	Title               *string  `json:"title"`
	Subreddit           *string  `json:"subreddit"`
	PostScore           *int     `json:"post_score"`
	CommentScore        *int     `json:"comment_score"`
	UpvoteRatio         *float64 `json:"upvote_ratio"`
	TotalAwardsReceived *int     `json:"total_awards_received"`
	PostLength          *int     `json:"post_length"`
	PostFlair           *string  `json:"post_flair"`
	Over18              *bool    `json:"over_18"`
	Sentiment           *float64 `json:"sentiment"`
	CleanedPostBody     *string  `json:"cleaned_post_body"`
	CleanedCommentBody  *string  `json:"cleaned_comment_body"`
	PostNumComments     *int     `json:"post_num_comments"`
}

// Fill produces the canonical record, substituting the documented default
// for every absent or null field.
func Fill(in RecordInput) CanonicalRecord {
	return CanonicalRecord{
		Title:               strOr(in.Title),
		Subreddit:           strOr(in.Subreddit),
		PostScore:           intOr(in.PostScore, NumericDefault("post_score")),
		CommentScore:        intOr(in.CommentScore, NumericDefault("comment_score")),
		UpvoteRatio:         floatOr(in.UpvoteRatio, NumericDefault("upvote_ratio")),
		TotalAwardsReceived: intOr(in.TotalAwardsReceived, NumericDefault("total_awards_received")),
		PostLength:          intOr(in.PostLength, NumericDefault("post_length")),
		PostFlair:           strOr(in.PostFlair),
		Over18:              boolOr(in.Over18),
		Sentiment:           floatOr(in.Sentiment, NumericDefault("sentiment")),
		CleanedPostBody:     strOr(in.CleanedPostBody),
		CleanedCommentBody:  strOr(in.CleanedCommentBody),
		PostNumComments:     intOr(in.PostNumComments, NumericDefault("post_num_comments")),
	}
}

// Records decodes a JSON payload containing either one structured record or
// an array of them, and default-fills every record.
func Records(data []byte) ([]CanonicalRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Reason: "empty request body"}
	}

	var inputs []RecordInput
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, &ValidationError{Reason: "body is not a valid JSON record array: " + err.Error()}
		}
	} else {
		var one RecordInput
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, &ValidationError{Reason: "body is not a valid JSON record: " + err.Error()}
		}
		inputs = []RecordInput{one}
	}

	records := make([]CanonicalRecord, len(inputs))
	for i, in := range inputs {
		records[i] = Fill(in)
	}
	return records, nil
}

func strOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intOr(p *int, def float64) int {
	if p == nil {
		return int(def)
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}
