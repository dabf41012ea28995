package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Modmail is a message recorded by MockClient.SendModmail.
type Modmail struct {
	Community string
	Subject   string
	Body      string
}

// A fake in-memory platform, for use in tests
type MockClient struct {
	mu     *sync.RWMutex
	nextID int

	User          string
	Posts         map[string]Post
	AllComments   map[string]Comment
	Messages      map[string]Message
	Read          map[string]bool
	RemovedPosts  map[string]bool
	Removed       map[string]bool
	Deleted       map[string]bool
	Locked        map[string]bool
	Distinguished map[string]bool
	Edits         map[string]int
	Modmail       []Modmail

	failures map[string]error
}

var _ Client = (*MockClient)(nil)

func NewMockClient(user string) *MockClient {
	return &MockClient{
		mu:            &sync.RWMutex{},
		User:          user,
		Posts:         make(map[string]Post),
		AllComments:   make(map[string]Comment),
		Messages:      make(map[string]Message),
		Read:          make(map[string]bool),
		RemovedPosts:  make(map[string]bool),
		Removed:       make(map[string]bool),
		Deleted:       make(map[string]bool),
		Locked:        make(map[string]bool),
		Distinguished: make(map[string]bool),
		Edits:         make(map[string]int),
		failures:      make(map[string]error),
	}
}

func (c *MockClient) AddPost(p Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Posts[p.ID] = p
}

func (c *MockClient) AddComment(cm Comment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cm.ParentID == "" {
		cm.ParentID = cm.PostID
		cm.TopLevel = true
	}
	c.AllComments[cm.ID] = cm
}

func (c *MockClient) AddMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages[m.ID] = m
}

// SetFailure makes every call of the named method return err. A nil err clears the failure.
func (c *MockClient) SetFailure(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, method)
		return
	}
	c.failures[method] = err
}

// CommentBody returns the current body of a comment, or the empty string if it does not exist.
func (c *MockClient) CommentBody(commentID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AllComments[commentID].Body
}

// ModmailCount returns the number of modmail messages sent so far.
func (c *MockClient) ModmailCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Modmail)
}

// RepliesTo returns the live comments whose parent is the given ID.
func (c *MockClient) RepliesTo(parentID string) []Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Comment
	for _, cm := range c.AllComments {
		if cm.ParentID == parentID {
			out = append(out, cm)
		}
	}
	sortComments(out)
	return out
}

func (c *MockClient) failure(method string) error {
	return c.failures[method]
}

func (c *MockClient) Username() string {
	return c.User
}

func (c *MockClient) Post(ctx context.Context, postID string) (*Post, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("Post"); err != nil {
		return nil, err
	}
	p, ok := c.Posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	return &p, nil
}

func (c *MockClient) Reply(ctx context.Context, postID, body string) (*Comment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("Reply"); err != nil {
		return nil, err
	}
	if _, ok := c.Posts[postID]; !ok {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	c.nextID++
	cm := Comment{
		ID:        fmt.Sprintf("reply%d", c.nextID),
		PostID:    postID,
		ParentID:  postID,
		TopLevel:  true,
		Author:    c.User,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	c.AllComments[cm.ID] = cm
	return &cm, nil
}

func (c *MockClient) Comment(ctx context.Context, commentID string) (*Comment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("Comment"); err != nil {
		return nil, err
	}
	cm, ok := c.AllComments[commentID]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	return &cm, nil
}

func (c *MockClient) EditComment(ctx context.Context, commentID, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("EditComment"); err != nil {
		return err
	}
	cm, ok := c.AllComments[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	cm.Body = body
	c.AllComments[commentID] = cm
	c.Edits[commentID]++
	return nil
}

func (c *MockClient) Distinguish(ctx context.Context, commentID string, sticky bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("Distinguish"); err != nil {
		return err
	}
	cm, ok := c.AllComments[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	cm.Stickied = sticky
	c.AllComments[commentID] = cm
	c.Distinguished[commentID] = true
	return nil
}

func (c *MockClient) Lock(ctx context.Context, commentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("Lock"); err != nil {
		return err
	}
	c.Locked[commentID] = true
	return nil
}

func (c *MockClient) RemovePost(ctx context.Context, postID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("RemovePost"); err != nil {
		return err
	}
	c.RemovedPosts[postID] = true
	return nil
}

func (c *MockClient) RemoveComment(ctx context.Context, commentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("RemoveComment"); err != nil {
		return err
	}
	c.Removed[commentID] = true
	return nil
}

func (c *MockClient) DeleteComment(ctx context.Context, commentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("DeleteComment"); err != nil {
		return err
	}
	delete(c.AllComments, commentID)
	c.Deleted[commentID] = true
	return nil
}

// Duplicates matches posts sharing the exact URL of the given post.
func (c *MockClient) Duplicates(ctx context.Context, postID string) ([]Post, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("Duplicates"); err != nil {
		return nil, err
	}
	p, ok := c.Posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	var out []Post
	for _, other := range c.Posts {
		if other.ID != p.ID && !p.IsSelf && other.URL == p.URL {
			out = append(out, other)
		}
	}
	sortPosts(out)
	return out, nil
}

func (c *MockClient) AuthorPosts(ctx context.Context, author string, limit int) ([]Post, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("AuthorPosts"); err != nil {
		return nil, err
	}
	var out []Post
	for _, p := range c.Posts {
		if p.Author == author {
			out = append(out, p)
		}
	}
	sortPosts(out)
	return truncate(out, limit), nil
}

func (c *MockClient) Comments(ctx context.Context, postID string) ([]Comment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("Comments"); err != nil {
		return nil, err
	}
	var out []Comment
	for _, cm := range c.AllComments {
		if cm.PostID == postID {
			out = append(out, cm)
		}
	}
	sortComments(out)
	return out, nil
}

func (c *MockClient) NewPosts(ctx context.Context, community string, limit int) ([]Post, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("NewPosts"); err != nil {
		return nil, err
	}
	var out []Post
	for _, p := range c.Posts {
		if p.Community == community {
			out = append(out, p)
		}
	}
	sortPosts(out)
	return truncate(out, limit), nil
}

func (c *MockClient) NewComments(ctx context.Context, community string, limit int) ([]Comment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("NewComments"); err != nil {
		return nil, err
	}
	var out []Comment
	for _, cm := range c.AllComments {
		if p, ok := c.Posts[cm.PostID]; ok && p.Community == community {
			out = append(out, cm)
		}
	}
	sortComments(out)
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return truncate(out, limit), nil
}

func (c *MockClient) UnreadMessages(ctx context.Context, limit int) ([]Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("UnreadMessages"); err != nil {
		return nil, err
	}
	var out []Message
	for _, m := range c.Messages {
		if !c.Read[m.ID] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

func (c *MockClient) MarkRead(ctx context.Context, messageIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("MarkRead"); err != nil {
		return err
	}
	for _, id := range messageIDs {
		c.Read[id] = true
	}
	return nil
}

func (c *MockClient) SendModmail(ctx context.Context, community, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("SendModmail"); err != nil {
		return err
	}
	c.Modmail = append(c.Modmail, Modmail{Community: community, Subject: subject, Body: body})
	return nil
}

// newest first, ties by ID
func sortPosts(posts []Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

// oldest first, ties by ID
func sortComments(comments []Comment) {
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
