// Copyright 2024-2026 Aiku AI

// Package textfmt converts a markdown document into the HTML and plain
// text forms a published message carries, extracting mention and hashtag
// references along the way.
package textfmt

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/aiku/fedibot/pkg/bot/vocab"
)

// ActorResolver resolves a fediverse handle ("@user@host") or actor URI to
// an actor. A nil actor with nil error means not found.
type ActorResolver interface {
	ResolveActor(ctx context.Context, ref string) (*vocab.Actor, error)
}

// Tag is a mention or hashtag reference extracted from a document, in
// document order.
type Tag struct {
	Kind vocab.Kind // vocab.KindMention or vocab.KindHashtag
	Name string     // "@alice@x.test" or "#golang"
	Href string     // actor URI, or hashtag page URL (may be empty)
}

// Rendered is the output of a single Render call.
type Rendered struct {
	HTML      string
	PlainText string
	Tags      []Tag
	// CachedActors holds every actor the renderer resolved while linking
	// mentions, keyed by actor URI, so callers can skip a second network
	// lookup when delivering to the same actors.
	CachedActors map[string]*vocab.Actor
}

// Renderer turns markdown documents into addressed message content. Safe
// for concurrent use.
type Renderer struct {
	resolver ActorResolver
	// tagBaseURL, when set, is prepended to hashtag names to form the
	// hashtag link target (e.g. "https://bot.example/tags/").
	tagBaseURL string
}

// NewRenderer creates a renderer that resolves mention handles through the
// given resolver. tagBaseURL may be empty, in which case hashtags are
// collected but not linked.
func NewRenderer(resolver ActorResolver, tagBaseURL string) *Renderer {
	return &Renderer{resolver: resolver, tagBaseURL: tagBaseURL}
}

// markdownInstance is initialized once and reused. The parser
// configuration never changes and goldmark.Markdown is safe to share;
// per-call state lives in the reader passed to Parse.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

var (
	mentionRe   = regexp.MustCompile(`@([A-Za-z0-9_.-]+)@([A-Za-z0-9.-]+[A-Za-z0-9])`)
	hashtagRe   = regexp.MustCompile(`(^|\s)#([\pL\pN_]+)`)
	codeBlockRe = regexp.MustCompile("(?s)```.*?```|`[^`\n]+`")
)

// Render converts the document to HTML and plain text, resolving every
// distinct mention handle once. Unresolvable handles stay as literal text
// and produce no tag entry.
func (r *Renderer) Render(ctx context.Context, doc string) (*Rendered, error) {
	out := &Rendered{CachedActors: make(map[string]*vocab.Actor)}
	if doc == "" {
		return out, nil
	}

	// Extract code spans into placeholders so mentions and hashtags
	// inside code are never linked.
	var code []string
	processed := codeBlockRe.ReplaceAllStringFunc(doc, func(match string) string {
		idx := len(code)
		code = append(code, match)
		return "\x00CODE" + strconv.Itoa(idx) + "\x00"
	})

	processed = r.linkMentions(ctx, processed, out)
	processed = r.linkHashtags(processed, out)

	for i, original := range code {
		processed = strings.Replace(processed, "\x00CODE"+strconv.Itoa(i)+"\x00", original, 1)
	}

	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(processed), &buf); err != nil {
		return nil, err
	}
	out.HTML = strings.TrimRight(buf.String(), "\n")
	out.PlainText = plainText(doc)
	return out, nil
}

// linkMentions resolves each distinct handle once and rewrites resolved
// mentions as markdown links so they survive the markdown pass.
func (r *Renderer) linkMentions(ctx context.Context, doc string, out *Rendered) string {
	resolved := make(map[string]*vocab.Actor)
	return mentionRe.ReplaceAllStringFunc(doc, func(match string) string {
		handle := match
		actor, seen := resolved[handle]
		if !seen {
			var err error
			actor, err = r.resolver.ResolveActor(ctx, handle)
			if err != nil || actor == nil || actor.ID == "" {
				actor = nil
			}
			resolved[handle] = actor
			if actor != nil {
				out.Tags = append(out.Tags, Tag{Kind: vocab.KindMention, Name: handle, Href: actor.ID})
				out.CachedActors[actor.ID] = actor
			}
		}
		if actor == nil {
			return match
		}
		// Display only the local part, Mastodon style.
		display := handle
		if i := strings.LastIndexByte(handle[1:], '@'); i >= 0 {
			display = handle[:i+1]
		}
		return "[" + display + "](" + actor.ID + ")"
	})
}

func (r *Renderer) linkHashtags(doc string, out *Rendered) string {
	seen := make(map[string]bool)
	return hashtagRe.ReplaceAllStringFunc(doc, func(match string) string {
		m := hashtagRe.FindStringSubmatch(match)
		lead, name := m[1], m[2]
		tagName := "#" + name
		if !seen[tagName] {
			seen[tagName] = true
			href := ""
			if r.tagBaseURL != "" {
				href = r.tagBaseURL + strings.ToLower(name)
			}
			out.Tags = append(out.Tags, Tag{Kind: vocab.KindHashtag, Name: tagName, Href: href})
		}
		if r.tagBaseURL == "" {
			return match
		}
		return lead + "[" + tagName + "](" + r.tagBaseURL + strings.ToLower(name) + ")"
	})
}

// plainText walks the markdown AST of the original document and collects
// its text segments, separating block-level nodes with newlines.
func plainText(doc string) string {
	source := []byte(doc)
	root := getMarkdown().Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, isBlock := n.(*ast.Paragraph); isBlock && sb.Len() > 0 {
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			block := n.Lines()
			for i := 0; i < block.Len(); i++ {
				seg := block.At(i)
				sb.Write(seg.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimRight(sb.String(), "\n")
}
