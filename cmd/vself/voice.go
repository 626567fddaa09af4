package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuqie6/VirtualSelf/internal/ai"
)

// speakCmd 朗读文本
func speakCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "speak <文本>",
		Short: "用分身的声音朗读一段文字，保存为 WAV",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAI(); err != nil {
				return err
			}
			audio, err := core.Services.Companion.Speak(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return saveSpeech(out, audio)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "speech.wav", "输出路径，'-' 表示标准输出")
	return cmd
}

// saveSpeech 把 PCM 包装为 WAV 后写出
func saveSpeech(path string, pcm []byte) error {
	if err := writeOutput(path, ai.WrapPCM16(pcm, ai.SpeechSampleRate)); err != nil {
		return err
	}
	if path != "-" {
		fmt.Printf("🔊 已保存到 %s\n", path)
	}
	return nil
}

// talkCmd 和分身对话
func talkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "talk [一句话]",
		Short: "和分身说句话（不带参数进入连续对话）",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAI(); err != nil {
				return err
			}
			svc := core.Services.Companion
			if len(args) > 0 {
				reply, err := svc.Talk(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Printf("🗣  %s\n", reply)
				return nil
			}

			fmt.Println("💬 开始对话（空行退出）")
			for {
				if cmd.Context().Err() != nil {
					return nil
				}
				fmt.Print("你: ")
				line, err := stdinReader.ReadString('\n')
				line = strings.TrimSpace(line)
				if line == "" {
					return nil
				}
				reply, talkErr := svc.Talk(cmd.Context(), line)
				if talkErr != nil {
					printError(talkErr)
				} else {
					fmt.Printf("🗣  %s\n", reply)
				}
				if err != nil {
					return nil
				}
			}
		},
	}
}
