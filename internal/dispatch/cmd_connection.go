package dispatch

import (
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/resp"
	"github.com/redlite/redlite/internal/rlerr"
)

func connectionCommands() []Command {
	return []Command{
		{Name: "PING", Arity: -1, AllowWhileSubscribed: true, Handler: cmdPing},
		{Name: "ECHO", Arity: 2, AllowWhileSubscribed: true, Handler: cmdEcho},
		{Name: "SELECT", Arity: 2, AllowWhileSubscribed: true, Handler: cmdSelect},
		{Name: "HELLO", Arity: -1, AllowWhileSubscribed: true, Handler: cmdHello},
		{Name: "AUTH", Arity: -2, AllowWhileSubscribed: true, Handler: cmdAuth},
		{Name: "QUIT", Arity: 1, AllowWhileSubscribed: true, Handler: cmdQuit},
	}
}

func cmdPing(c *Context, args [][]byte) (any, error) {
	if len(args) >= 1 {
		return args[0], nil
	}
	if c.Session.SubscriptionCount() > 0 && c.Session.Proto() < 3 {
		return []any{"pong", []byte("")}, nil
	}
	return "PONG", nil
}

func cmdEcho(c *Context, args [][]byte) (any, error) {
	return args[0], nil
}

func cmdSelect(c *Context, args [][]byte) (any, error) {
	n, err := strconv.Atoi(string(args[0]))
	if err != nil || n < 0 {
		return nil, rlerr.Valuef("DB index is out of range")
	}
	c.Session.SelectDB(n)
	return "OK", nil
}

func cmdAuth(c *Context, args [][]byte) (any, error) {
	pass := c.Root.Config.RequirePass()
	if pass == "" {
		return nil, rlerr.New(rlerr.Unknown, "Client sent AUTH, but no password is set. Did you mean AUTH <username> <password>?")
	}
	given := string(args[len(args)-1])
	if given != pass {
		return nil, rlerr.New(rlerr.Unknown, "invalid password")
	}
	c.Session.SetAuthenticated(true)
	return "OK", nil
}

func cmdQuit(c *Context, args [][]byte) (any, error) {
	return "OK", nil
}

func cmdHello(c *Context, args [][]byte) (any, error) {
	proto := c.Session.Proto()
	i := 0
	if len(args) >= 1 {
		n, err := strconv.Atoi(string(args[0]))
		if err != nil || (n != 2 && n != 3) {
			return nil, rlerr.New(rlerr.Unknown, "NOPROTO unsupported protocol version")
		}
		proto = n
		i = 1
	}
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "AUTH":
			if i+2 >= len(args) {
				return nil, rlerr.ErrSyntax
			}
			if _, err := cmdAuth(c, [][]byte{args[i], args[i+1], args[i+2]}); err != nil {
				return nil, err
			}
			i += 3
		case "SETNAME":
			i += 2
		default:
			return nil, rlerr.ErrSyntax
		}
	}
	c.Session.SetProto(proto)
	m := resp.Map{
		{[]byte("server"), []byte("redlite")},
		{[]byte("version"), []byte("1.0.0")},
		{[]byte("proto"), int64(proto)},
		{[]byte("id"), int64(0)},
		{[]byte("mode"), []byte("standalone")},
		{[]byte("role"), []byte("master")},
		{[]byte("modules"), []any{}},
	}
	return m, nil
}
