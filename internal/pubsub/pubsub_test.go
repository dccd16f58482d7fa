package pubsub

import "testing"

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"news.*", "news.tech", true},
		{"news.*", "weather.tech", false},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]t", "hbt", true},
		{"h[a-c]t", "hdt", false},
		{"*", "anything", true},
		{"exact", "exact", true},
		{"exact", "exacty", false},
	}
	for _, tc := range cases {
		if got := Match(tc.pattern, tc.s); got != tc.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tc.pattern, tc.s, got, tc.want)
		}
	}
}

func TestSubscribePublishDeliversToDirectAndPattern(t *testing.T) {
	b := New()
	var directMsgs, patternMsgs []Message
	b.Register("s1", func(m Message) { directMsgs = append(directMsgs, m) })
	b.Register("s2", func(m Message) { patternMsgs = append(patternMsgs, m) })

	if n := b.Subscribe("s1", "news.tech"); n != 1 {
		t.Fatalf("expected subscription count 1, got %d", n)
	}
	if n := b.PSubscribe("s2", "news.*"); n != 1 {
		t.Fatalf("expected pattern subscription count 1, got %d", n)
	}

	delivered := b.Publish("news.tech", []byte("hello"))
	if delivered != 2 {
		t.Fatalf("expected delivery to 2 sessions, got %d", delivered)
	}
	if len(directMsgs) != 1 || directMsgs[0].Pattern != "" {
		t.Fatalf("unexpected direct delivery: %+v", directMsgs)
	}
	if len(patternMsgs) != 1 || patternMsgs[0].Pattern != "news.*" {
		t.Fatalf("unexpected pattern delivery: %+v", patternMsgs)
	}
}

func TestUnregisterDropsAllSubscriptions(t *testing.T) {
	b := New()
	b.Register("s1", func(Message) {})
	b.Subscribe("s1", "ch1")
	b.PSubscribe("s1", "pat.*")
	b.Unregister("s1")

	if b.SubscriptionCount("s1") != 0 {
		t.Fatal("expected no subscriptions left after unregister")
	}
	if n := b.Publish("ch1", []byte("x")); n != 0 {
		t.Fatalf("expected no delivery after unregister, got %d", n)
	}
}

func TestUnsubscribeAllReturnsDropped(t *testing.T) {
	b := New()
	b.Register("s1", func(Message) {})
	b.Subscribe("s1", "ch1")
	b.Subscribe("s1", "ch2")

	dropped := b.UnsubscribeAll("s1")
	if len(dropped) != 2 {
		t.Fatalf("expected 2 channels dropped, got %v", dropped)
	}
	if b.SubscriptionCount("s1") != 0 {
		t.Fatal("expected subscriptions cleared")
	}
}

func TestNumSubAndNumPat(t *testing.T) {
	b := New()
	b.Register("s1", func(Message) {})
	b.Register("s2", func(Message) {})
	b.Subscribe("s1", "ch1")
	b.Subscribe("s2", "ch1")
	b.PSubscribe("s1", "pat.*")

	counts := b.NumSub([]string{"ch1", "ch2"})
	if counts["ch1"] != 2 || counts["ch2"] != 0 {
		t.Fatalf("unexpected NumSub: %v", counts)
	}
	if b.NumPat() != 1 {
		t.Fatalf("expected 1 pattern, got %d", b.NumPat())
	}
}
