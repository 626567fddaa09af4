package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuqie6/VirtualSelf/internal/ai"
	"golang.org/x/term"
)

var (
	terminalCreds *ai.CredentialStore
	stdinReader   = bufio.NewReader(os.Stdin)
)

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newTerminalRefresher 密钥失效时在终端里重新输入；非交互环境返回 nil
func newTerminalRefresher() ai.CredentialRefresher {
	if !isInteractive() {
		return nil
	}
	return ai.CredentialRefresherFunc(func(ctx context.Context) error {
		if terminalCreds == nil {
			return ai.ErrAuthExpired
		}
		fmt.Fprintln(os.Stderr, "\n🔑 API 密钥无效或已过期")
		return promptAPIKey(terminalCreds)
	})
}

// promptAPIKey 隐藏回显读取密钥
func promptAPIKey(creds *ai.CredentialStore) error {
	fmt.Fprint(os.Stderr, "请输入 Gemini API Key: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("读取密钥失败: %w", err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return ai.ErrAuthExpired
	}
	creds.SetAPIKey(key)
	return nil
}

// ask 交互式读取一行；def 非空时作为默认值
func ask(label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := stdinReader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}
