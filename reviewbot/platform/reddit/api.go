package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bww-mods/benchbot/reviewbot/platform"

	"github.com/google/go-querystring/query"
)

type listingParams struct {
	Limit int    `url:"limit,omitempty"`
	Sort  string `url:"sort,omitempty"`
	ID    string `url:"id,omitempty"`
}

type thingParams struct {
	ID      string `url:"id,omitempty"`
	ThingID string `url:"thing_id,omitempty"`
	Text    string `url:"text,omitempty"`
}

type distinguishParams struct {
	ID     string `url:"id"`
	How    string `url:"how"`
	Sticky bool   `url:"sticky"`
}

type removeParams struct {
	ID   string `url:"id"`
	Spam bool   `url:"spam"`
}

type moreChildrenParams struct {
	APIType  string `url:"api_type"`
	LinkID   string `url:"link_id"`
	Children string `url:"children"`
}

type composeParams struct {
	To      string `url:"to"`
	Subject string `url:"subject"`
	Text    string `url:"text"`
}

func (c *Client) getListing(ctx context.Context, path string, params any) (*Listing, error) {
	vals, err := query.Values(params)
	if err != nil {
		return nil, err
	}
	var l Listing
	if err := c.Do(ctx, http.MethodGet, path, vals, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// postAPI sends a form POST to an endpoint answering with the api_type=json envelope.
func (c *Client) postAPI(ctx context.Context, path string, params any) (*apiResponse, error) {
	vals, err := query.Values(params)
	if err != nil {
		return nil, err
	}
	vals.Set("api_type", "json")
	var resp apiResponse
	if err := c.Do(ctx, http.MethodPost, path, vals, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post sends a form POST to an endpoint with an empty or irrelevant response body.
func (c *Client) post(ctx context.Context, path string, params any) error {
	vals, err := query.Values(params)
	if err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPost, path, vals, nil)
}

// Post returns platform.ErrNotFound for posts that are gone, including ones deleted by their author or removed by
// moderators.
func (c *Client) Post(ctx context.Context, postID string) (*platform.Post, error) {
	l, err := c.getListing(ctx, "/by_id/"+fullname(kindLink, postID), listingParams{})
	if err != nil {
		return nil, err
	}
	for _, t := range l.Data.Children {
		if t.Kind != kindLink {
			continue
		}
		var d LinkData
		if err := json.Unmarshal(t.Data, &d); err != nil {
			return nil, err
		}
		if d.RemovedByCategory != nil && *d.RemovedByCategory != "" {
			return nil, fmt.Errorf("post %s removed (%s): %w", postID, *d.RemovedByCategory, platform.ErrNotFound)
		}
		p := d.Post()
		return &p, nil
	}
	return nil, fmt.Errorf("post %s: %w", postID, platform.ErrNotFound)
}

func (c *Client) Reply(ctx context.Context, postID, body string) (*platform.Comment, error) {
	resp, err := c.postAPI(ctx, "/api/comment", thingParams{ThingID: fullname(kindLink, postID), Text: body})
	if err != nil {
		return nil, err
	}
	l := Listing{}
	l.Data.Children = resp.JSON.Data.Things
	comments, err := l.Comments()
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("reply to %s: no comment in response", postID)
	}
	return &comments[0], nil
}

func (c *Client) Comment(ctx context.Context, commentID string) (*platform.Comment, error) {
	l, err := c.getListing(ctx, "/api/info", listingParams{ID: fullname(kindComment, commentID)})
	if err != nil {
		return nil, err
	}
	comments, err := l.Comments()
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("comment %s: %w", commentID, platform.ErrNotFound)
	}
	return &comments[0], nil
}

func (c *Client) EditComment(ctx context.Context, commentID, body string) error {
	_, err := c.postAPI(ctx, "/api/editusertext", thingParams{ThingID: fullname(kindComment, commentID), Text: body})
	return err
}

func (c *Client) Distinguish(ctx context.Context, commentID string, sticky bool) error {
	_, err := c.postAPI(ctx, "/api/distinguish", distinguishParams{ID: fullname(kindComment, commentID), How: "yes", Sticky: sticky})
	return err
}

func (c *Client) Lock(ctx context.Context, commentID string) error {
	return c.post(ctx, "/api/lock", thingParams{ID: fullname(kindComment, commentID)})
}

func (c *Client) remove(ctx context.Context, name string) error {
	return c.post(ctx, "/api/remove", removeParams{ID: name})
}

func (c *Client) RemovePost(ctx context.Context, postID string) error {
	return c.remove(ctx, fullname(kindLink, postID))
}

func (c *Client) RemoveComment(ctx context.Context, commentID string) error {
	return c.remove(ctx, fullname(kindComment, commentID))
}

func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.post(ctx, "/api/del", thingParams{ID: fullname(kindComment, commentID)})
}

// Duplicates returns the other submissions of the post's link. The endpoint answers with two listings: the post
// itself, then its duplicates.
func (c *Client) Duplicates(ctx context.Context, postID string) ([]platform.Post, error) {
	var pair []Listing
	vals, err := query.Values(listingParams{Limit: 100})
	if err != nil {
		return nil, err
	}
	if err := c.Do(ctx, http.MethodGet, "/duplicates/"+postID, vals, &pair); err != nil {
		return nil, err
	}
	if len(pair) < 2 {
		return nil, nil
	}
	return pair[1].Posts()
}

func (c *Client) AuthorPosts(ctx context.Context, author string, limit int) ([]platform.Post, error) {
	l, err := c.getListing(ctx, "/user/"+url.PathEscape(author)+"/submitted", listingParams{Limit: limit, Sort: "new"})
	if err != nil {
		return nil, err
	}
	return l.Posts()
}

// Comments returns the post's loaded comment tree, flattened.
func (c *Client) Comments(ctx context.Context, postID string) ([]platform.Comment, error) {
	var pair []Listing
	vals, err := query.Values(listingParams{Limit: 500})
	if err != nil {
		return nil, err
	}
	if err := c.Do(ctx, http.MethodGet, "/comments/"+postID, vals, &pair); err != nil {
		return nil, err
	}
	if len(pair) < 2 {
		return nil, nil
	}
	comments, more, err := flattenComments(pair[1].Data.Children)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(comments))
	for _, cm := range comments {
		seen[cm.ID] = true
	}
	for round := 0; len(more) > 0; round++ {
		if round >= maxMoreRounds {
			return nil, fmt.Errorf("comment tree of %s still has %d hidden comments after %d requests", postID, len(more), round)
		}
		batch := more
		if len(batch) > moreChildrenBatch {
			batch = batch[:moreChildrenBatch]
		}
		more = more[len(batch):]

		things, err := c.moreChildren(ctx, postID, batch)
		if err != nil {
			return nil, err
		}
		found, hidden, err := flattenComments(things)
		if err != nil {
			return nil, err
		}
		for _, cm := range found {
			if seen[cm.ID] {
				continue
			}
			seen[cm.ID] = true
			comments = append(comments, cm)
		}
		for _, id := range hidden {
			if !seen[id] {
				more = append(more, id)
			}
		}
	}
	return comments, nil
}

const (
	// morechildren accepts at most 100 IDs per request
	moreChildrenBatch = 100
	maxMoreRounds     = 50
)

// moreChildren loads comments that a listing replaced with "more" stubs. The result is flat: every comment comes back
// as its own thing, possibly alongside further stubs.
func (c *Client) moreChildren(ctx context.Context, postID string, ids []string) ([]Thing, error) {
	vals, err := query.Values(moreChildrenParams{
		APIType:  "json",
		LinkID:   fullname(kindLink, postID),
		Children: strings.Join(ids, ","),
	})
	if err != nil {
		return nil, err
	}
	var resp apiResponse
	if err := c.Do(ctx, http.MethodGet, "/api/morechildren", vals, &resp); err != nil {
		return nil, fmt.Errorf("loading more comments of %s: %w", postID, err)
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return resp.JSON.Data.Things, nil
}

func (c *Client) NewPosts(ctx context.Context, community string, limit int) ([]platform.Post, error) {
	l, err := c.getListing(ctx, "/r/"+community+"/new", listingParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	return l.Posts()
}

func (c *Client) NewComments(ctx context.Context, community string, limit int) ([]platform.Comment, error) {
	l, err := c.getListing(ctx, "/r/"+community+"/comments", listingParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	return l.Comments()
}

func (c *Client) UnreadMessages(ctx context.Context, limit int) ([]platform.Message, error) {
	l, err := c.getListing(ctx, "/message/unread", listingParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	return l.Messages()
}

func (c *Client) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.post(ctx, "/api/read_message", thingParams{ID: strings.Join(ids, ",")})
}

func (c *Client) SendModmail(ctx context.Context, community, subject, body string) error {
	_, err := c.postAPI(ctx, "/api/compose", composeParams{To: "/r/" + community, Subject: subject, Text: body})
	return err
}
