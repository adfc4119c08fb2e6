package sources

import (
	"context"

	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/storage"
)

// contextBandDepth is the depth given to every status in a Mastodon context
// response. The API returns ancestors and descendants as two flat lists, so
// both are stored one step away from the searched status rather than at their
// true distance.
const contextBandDepth = 1

// storeContextBands stores each ancestor and descendant of threadID.
func storeContextBands(ctx context.Context, counter *storage.Counter, threadID string,
	bands [][]mastodonStatus, build func(mastodonStatus, string, int) *models.Mention) {
	for _, band := range bands {
		for _, status := range band {
			counter.Add(ctx, build(status, threadID, contextBandDepth))
		}
	}
}

// commentFrame is one pending node of a comment tree walk.
type commentFrame struct {
	node  redditThing
	depth int
}

// walkCommentTree visits every node under roots once, in pre-order, using an
// explicit stack. Comments with an empty body or no id are not stored but
// their replies still are, so a deleted comment does not cut off its subtree.
func walkCommentTree(ctx context.Context, counter *storage.Counter, threadID string, roots []redditThing,
	startDepth int, build func(redditThingData, string, int) *models.Mention) {
	stack := make([]commentFrame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, commentFrame{node: roots[i], depth: startDepth})
	}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if ctx.Err() != nil {
			return
		}

		data := frame.node.Data
		if frame.node.Kind == redditKindComment && data.Body != "" && data.ID != "" {
			counter.Add(ctx, build(data, threadID, frame.depth))
		}

		children := data.Replies.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, commentFrame{node: children[i], depth: frame.depth + 1})
		}
	}
}
