package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultExtractTimeout = 30 * time.Second

// Extractor 以子进程方式调用外部提取脚本：stdin 写入页面，关闭后读取全部 stdout
type Extractor struct {
	Timeout time.Duration
}

func NewExtractor(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	return &Extractor{Timeout: timeout}
}

// Invoke 运行 program，退出码不做要求；只有启动失败、读写失败和输出非法编码算错误
func (e *Extractor) Invoke(ctx context.Context, program, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, program)
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// 超时被 kill 后，脚本派生的子进程可能仍占着 stdout，最多再等这么久
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return "", &ExecError{Program: program, Kind: ExecSpawn, Err: err}
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &ExecError{Program: program, Kind: ExecIO, Err: fmt.Errorf("%w: %v", ctxErr, err)}
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", &ExecError{Program: program, Kind: ExecIO, Err: err}
		}
		log.Printf("extract %s: exited with %d, stderr: %s", program, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}

	out := stdout.Bytes()
	if !utf8.Valid(out) {
		return "", &ExecError{Program: program, Kind: ExecDecode, Err: fmt.Errorf("%d bytes of non utf-8 output", len(out))}
	}
	return string(out), nil
}
