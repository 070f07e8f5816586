package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/anmitsu/go-shlex"
)

var (
	ErrUnknownCommand = errors.New("未知命令")
	ErrEmptyCommand   = errors.New("空命令")
)

// Handler 命令处理函数，ctx 为调用方上下文（例如发出命令的客户端）
type Handler[T any] func(ctx T, args []string) error

// Registry 名称到处理函数的映射，名称不区分大小写
type Registry[T any] struct {
	handlers map[string]Handler[T]
}

// NewRegistry 创建空注册表
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{handlers: make(map[string]Handler[T])}
}

// Register 注册命令，重复注册返回错误
func (r *Registry[T]) Register(name string, h Handler[T]) error {
	key := strings.ToLower(name)
	if key == "" {
		return ErrEmptyCommand
	}
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("命令 %s 已注册", name)
	}
	r.handlers[key] = h
	return nil
}

// Has 命令是否已注册
func (r *Registry[T]) Has(name string) bool {
	_, ok := r.handlers[strings.ToLower(name)]
	return ok
}

// Names 已注册命令名，按字母序
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute 拆分一行文本并调用对应处理函数
// args[0] 为命令名
func (r *Registry[T]) Execute(ctx T, line string) error {
	args, err := Tokenize(line)
	if err != nil {
		return err
	}
	return r.ExecuteArgs(ctx, args)
}

// ExecuteArgs 以已拆分的参数调用处理函数
func (r *Registry[T]) ExecuteArgs(ctx T, args []string) error {
	if len(args) == 0 {
		return ErrEmptyCommand
	}
	h, ok := r.handlers[strings.ToLower(args[0])]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	return h(ctx, args)
}

// Tokenize 按 shell 规则拆分命令行，支持引号
func Tokenize(line string) ([]string, error) {
	args, err := shlex.Split(line, true)
	if err != nil {
		return nil, fmt.Errorf("拆分命令 %q 失败: %w", line, err)
	}
	return args, nil
}

// Quote 把参数包成 Tokenize 能原样还原的单个词
func Quote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n\"'\\") {
		return arg
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range arg {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
