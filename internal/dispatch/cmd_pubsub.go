package dispatch

import (
	"strings"

	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/rlerr"
)

func pubsubCommands() []Command {
	return []Command{
		{Name: "SUBSCRIBE", Arity: -2, AllowWhileSubscribed: true, NoImplicitReply: true, Handler: cmdSubscribe},
		{Name: "UNSUBSCRIBE", Arity: -1, AllowWhileSubscribed: true, NoImplicitReply: true, Handler: cmdUnsubscribe},
		{Name: "PSUBSCRIBE", Arity: -2, AllowWhileSubscribed: true, NoImplicitReply: true, Handler: cmdPSubscribe},
		{Name: "PUNSUBSCRIBE", Arity: -1, AllowWhileSubscribed: true, NoImplicitReply: true, Handler: cmdPUnsubscribe},
		{Name: "PUBLISH", Arity: 3, Handler: cmdPublish},
		{Name: "PUBSUB", Arity: -2, AllowWhileSubscribed: true, Handler: cmdPubSub},
	}
}

func cmdSubscribe(c *Context, args [][]byte) (any, error) {
	for _, ch := range args {
		total := c.Root.PubSub.Subscribe(c.Session.ID, string(ch))
		c.Session.SetSubscriptionCounts(subscriptionSplit(c, total))
		if c.Push != nil {
			if err := c.Push([]any{"subscribe", ch, int64(total)}); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func cmdUnsubscribe(c *Context, args [][]byte) (any, error) {
	channels := args
	var dropped [][]byte
	if len(channels) == 0 {
		for _, ch := range c.Root.PubSub.UnsubscribeAll(c.Session.ID) {
			dropped = append(dropped, []byte(ch))
		}
		if len(dropped) == 0 {
			dropped = [][]byte{nil}
		}
		return pushUnsubConfirmations(c, "unsubscribe", dropped)
	}
	for _, ch := range channels {
		total := c.Root.PubSub.Unsubscribe(c.Session.ID, string(ch))
		c.Session.SetSubscriptionCounts(subscriptionSplit(c, total))
		if c.Push != nil {
			if err := c.Push([]any{"unsubscribe", ch, int64(total)}); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func cmdPSubscribe(c *Context, args [][]byte) (any, error) {
	for _, pat := range args {
		total := c.Root.PubSub.PSubscribe(c.Session.ID, string(pat))
		c.Session.SetSubscriptionCounts(subscriptionSplit(c, total))
		if c.Push != nil {
			if err := c.Push([]any{"psubscribe", pat, int64(total)}); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func cmdPUnsubscribe(c *Context, args [][]byte) (any, error) {
	patterns := args
	if len(patterns) == 0 {
		var dropped [][]byte
		for _, p := range c.Root.PubSub.PUnsubscribeAll(c.Session.ID) {
			dropped = append(dropped, []byte(p))
		}
		if len(dropped) == 0 {
			dropped = [][]byte{nil}
		}
		return pushUnsubConfirmations(c, "punsubscribe", dropped)
	}
	for _, pat := range patterns {
		total := c.Root.PubSub.PUnsubscribe(c.Session.ID, string(pat))
		c.Session.SetSubscriptionCounts(subscriptionSplit(c, total))
		if c.Push != nil {
			if err := c.Push([]any{"punsubscribe", pat, int64(total)}); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// pushUnsubConfirmations emits one confirmation frame per dropped
// subscription, each carrying the running total after that drop (derived
// from the broker's count once everything is dropped) —
// UnsubscribeAll/PUnsubscribeAll return the full dropped set in one call,
// but Redis's wire protocol still replies to it one at a time.
func pushUnsubConfirmations(c *Context, kind string, dropped [][]byte) (any, error) {
	remaining := c.Root.PubSub.SubscriptionCount(c.Session.ID)
	for i, name := range dropped {
		total := remaining + len(dropped) - 1 - i
		c.Session.SetSubscriptionCounts(subscriptionSplit(c, total))
		if c.Push != nil {
			if err := c.Push([]any{kind, name, int64(total)}); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// subscriptionSplit approximates Session's separately-tracked channel and
// pattern counts from the broker's combined total. Session only needs the
// sum to gate commands while subscribed (see Dispatch), so the split is
// arbitrary as long as the two halves add up to total.
func subscriptionSplit(c *Context, total int) (channels, patterns int) {
	return total, 0
}

func cmdPublish(c *Context, args [][]byte) (any, error) {
	n := c.Root.PubSub.Publish(string(args[0]), args[1])
	return int64(n), nil
}

func cmdPubSub(c *Context, args [][]byte) (any, error) {
	switch strings.ToUpper(string(args[0])) {
	case "CHANNELS":
		pattern := "*"
		if len(args) >= 2 {
			pattern = string(args[1])
		}
		names := c.Root.PubSub.Channels(pattern)
		out := make([][]byte, len(names))
		for i, n := range names {
			out[i] = []byte(n)
		}
		return out, nil
	case "NUMSUB":
		channels := make([]string, len(args)-1)
		for i, ch := range args[1:] {
			channels[i] = string(ch)
		}
		counts := c.Root.PubSub.NumSub(channels)
		m := make(resp.Map, 0, len(channels))
		for _, ch := range channels {
			m = append(m, [2]any{[]byte(ch), int64(counts[ch])})
		}
		return m, nil
	case "NUMPAT":
		return int64(c.Root.PubSub.NumPat()), nil
	default:
		return nil, rlerr.New(rlerr.Unknown, "Unknown PUBSUB subcommand or wrong number of arguments")
	}
}
