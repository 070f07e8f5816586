package cgame

import (
	"fmt"
	"strings"

	"snapsync/internal/command"
)

// 服务器下发的游戏命令
var gameCommands = []struct {
	name    string
	handler command.Handler[*State]
}{
	{"pr", messageCommand},
	{"ch", messageCommand},
	{"tch", messageCommand},
	{"cp", messageCommand},
	{"obry", obituaryCommand},
}

func newGameCommands() *command.Registry[*State] {
	r := command.NewRegistry[*State]()
	for _, c := range gameCommands {
		if err := r.Register(c.name, c.handler); err != nil {
			panic(err)
		}
	}
	return r
}

// RegisterGameCommand 注册额外的游戏命令处理函数
func (s *State) RegisterGameCommand(name string, h command.Handler[*State]) error {
	return s.commands.Register(name, h)
}

func messageCommand(s *State, args []string) error {
	s.messages = append(s.messages, Message{
		Kind: strings.ToLower(args[0]),
		Text: strings.Join(args[1:], " "),
	})
	return nil
}

// obituaryCommand obry <victim> <attacker> <mod>
func obituaryCommand(s *State, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("obry 参数不足: %v", args)
	}
	text := args[2] + " -> " + args[1]
	if len(args) > 3 {
		text += " (" + args[3] + ")"
	}
	s.messages = append(s.messages, Message{Kind: "obry", Text: text})
	return nil
}
