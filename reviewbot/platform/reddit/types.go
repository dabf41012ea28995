package reddit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bww-mods/benchbot/reviewbot/platform"
)

const (
	kindComment = "t1"
	kindLink    = "t3"
	kindMessage = "t4"
	kindMore    = "more"
	kindListing = "Listing"
)

type Thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type Listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []Thing `json:"children"`
	} `json:"data"`
}

type LinkData struct {
	ID                string  `json:"id"`
	Author            string  `json:"author"`
	Title             string  `json:"title"`
	URL               string  `json:"url"`
	Subreddit         string  `json:"subreddit"`
	IsSelf            bool    `json:"is_self"`
	LinkFlairText     *string `json:"link_flair_text"`
	Score             int     `json:"score"`
	Permalink         string  `json:"permalink"`
	CreatedUTC        float64 `json:"created_utc"`
	RemovedByCategory *string `json:"removed_by_category"`
}

type CommentData struct {
	ID          string  `json:"id"`
	LinkID      string  `json:"link_id"`
	ParentID    string  `json:"parent_id"`
	Author      string  `json:"author"`
	Body        string  `json:"body"`
	IsSubmitter bool    `json:"is_submitter"`
	Stickied    bool    `json:"stickied"`
	CreatedUTC  float64 `json:"created_utc"`

	// either "" or a Listing
	Replies json.RawMessage `json:"replies"`
}

// MoreData is a "load more comments" stub standing in for comments the listing left out.
type MoreData struct {
	ParentID string   `json:"parent_id"`
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

type MessageData struct {
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
	WasComment bool    `json:"was_comment"`
	CreatedUTC float64 `json:"created_utc"`
}

// response envelope of api_type=json endpoints
type apiResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []Thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func (r *apiResponse) err() error {
	if len(r.JSON.Errors) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.JSON.Errors))
	for _, e := range r.JSON.Errors {
		parts = append(parts, fmt.Sprint(e...))
	}
	return fmt.Errorf("reddit API rejected request: %s", strings.Join(parts, "; "))
}

func fullname(kind, id string) string {
	return kind + "_" + id
}

// shortID strips the kind prefix from a fullname.
func shortID(name string) string {
	if _, id, ok := strings.Cut(name, "_"); ok {
		return id
	}
	return name
}

func author(name string) string {
	if name == "[deleted]" {
		return ""
	}
	return name
}

func unixTime(ts float64) time.Time {
	return time.Unix(int64(ts), 0).UTC()
}

func (d *LinkData) Post() platform.Post {
	p := platform.Post{
		ID:        d.ID,
		Author:    author(d.Author),
		Title:     d.Title,
		URL:       d.URL,
		Community: d.Subreddit,
		IsSelf:    d.IsSelf,
		Score:     d.Score,
		Permalink: "https://www.reddit.com" + d.Permalink,
		CreatedAt: unixTime(d.CreatedUTC),
	}
	if d.LinkFlairText != nil {
		p.Flair = *d.LinkFlairText
	}
	return p
}

func (d *CommentData) Comment() platform.Comment {
	return platform.Comment{
		ID:          d.ID,
		PostID:      shortID(d.LinkID),
		ParentID:    shortID(d.ParentID),
		TopLevel:    strings.HasPrefix(d.ParentID, kindLink+"_"),
		Author:      author(d.Author),
		Body:        d.Body,
		IsSubmitter: d.IsSubmitter,
		Stickied:    d.Stickied,
		CreatedAt:   unixTime(d.CreatedUTC),
	}
}

// Messages keep their fullname as ID, since the inbox mixes private messages and comment replies.
func (d *MessageData) Message() platform.Message {
	return platform.Message{
		ID:         d.Name,
		Author:     author(d.Author),
		Subject:    d.Subject,
		Body:       d.Body,
		WasComment: d.WasComment,
		CreatedAt:  unixTime(d.CreatedUTC),
	}
}

func (l *Listing) Posts() ([]platform.Post, error) {
	out := make([]platform.Post, 0, len(l.Data.Children))
	for _, t := range l.Data.Children {
		if t.Kind != kindLink {
			continue
		}
		var d LinkData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, fmt.Errorf("decoding link: %w", err)
		}
		out = append(out, d.Post())
	}
	return out, nil
}

// Comments flattens the listing and every nested reply listing, parents before children. "more" stubs are skipped;
// use flattenComments to get their IDs.
func (l *Listing) Comments() ([]platform.Comment, error) {
	comments, _, err := flattenComments(l.Data.Children)
	return comments, err
}

// flattenComments walks a comment tree and returns the comments found plus the IDs hidden behind "more" stubs.
func flattenComments(things []Thing) ([]platform.Comment, []string, error) {
	var out []platform.Comment
	var more []string
	for _, t := range things {
		switch t.Kind {
		case kindMore:
			var m MoreData
			if err := json.Unmarshal(t.Data, &m); err != nil {
				return nil, nil, fmt.Errorf("decoding more stub: %w", err)
			}
			more = append(more, m.Children...)
			continue
		case kindComment:
		default:
			continue
		}
		var d CommentData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, nil, fmt.Errorf("decoding comment: %w", err)
		}
		out = append(out, d.Comment())

		replies := bytes.TrimSpace(d.Replies)
		if len(replies) == 0 || replies[0] != '{' {
			continue
		}
		var nested Listing
		if err := json.Unmarshal(replies, &nested); err != nil {
			return nil, nil, fmt.Errorf("decoding replies of %s: %w", d.ID, err)
		}
		children, hidden, err := flattenComments(nested.Data.Children)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, children...)
		more = append(more, hidden...)
	}
	return out, more, nil
}

func (l *Listing) Messages() ([]platform.Message, error) {
	out := make([]platform.Message, 0, len(l.Data.Children))
	for _, t := range l.Data.Children {
		if t.Kind != kindMessage && t.Kind != kindComment {
			continue
		}
		var d MessageData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, fmt.Errorf("decoding message: %w", err)
		}
		if t.Kind == kindComment {
			d.WasComment = true
		}
		out = append(out, d.Message())
	}
	return out, nil
}
