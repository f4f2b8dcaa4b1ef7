package kernel

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"

	"pixcte/correct"
)

// Exec invokes the native kernel executable once per quadrant. The request is
// written to the child's stdin and the response read from its stdout; the
// child's stderr passes through for its own diagnostics. The call blocks
// until the child exits; cancellation is the caller's concern, matching the
// rest of the pipeline.
type Exec struct {
	// Command is the kernel executable; Args are prepended fixed args.
	Command string
	Args    []string

	// Stderr receives the child's diagnostics; nil means os.Stderr.
	Stderr io.Writer
}

var _ correct.Kernel = (*Exec)(nil)

// Protocol constants. All integers are little-endian; all floats are IEEE 754
// doubles. Request: magic, version, qmax, rows, cols, levels, amp, logPath,
// trapsAtLevel, leak, open, signal. Response: magic, status, then rows*cols
// corrected values when status is 0.
const (
	execMagic   = uint32(0x50435445) // "PCTE"
	execVersion = uint32(1)
)

// Apply runs the kernel subprocess for one quadrant.
func (e *Exec) Apply(sig [][]float64, qmax int, trapsAtLevel []int,
	leak, open [][]float64, amp, logPath string) ([][]float64, int, error) {
	if e.Command == "" {
		return nil, 0, fmt.Errorf("kernel: no command configured")
	}

	var request bytes.Buffer
	if err := encodeRequest(&request, sig, qmax, trapsAtLevel, leak, open, amp, logPath); err != nil {
		return nil, 0, err
	}

	cmd := exec.Command(e.Command, e.Args...)
	cmd.Stdin = &request
	cmd.Stderr = e.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("kernel: pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, 0, fmt.Errorf("kernel: start %s: %w", e.Command, err)
	}

	corrected, status, decodeErr := decodeResponse(bufio.NewReader(stdout), len(sig), cols(sig))
	waitErr := cmd.Wait()
	if decodeErr != nil {
		return nil, 0, fmt.Errorf("kernel: %s: %w", e.Command, decodeErr)
	}
	if waitErr != nil {
		return nil, 0, fmt.Errorf("kernel: %s: %w", e.Command, waitErr)
	}
	return corrected, status, nil
}

func cols(plane [][]float64) int {
	if len(plane) == 0 {
		return 0
	}
	return len(plane[0])
}

func encodeRequest(w io.Writer, sig [][]float64, qmax int, trapsAtLevel []int,
	leak, open [][]float64, amp, logPath string) error {
	bw := bufio.NewWriter(w)
	order := binary.LittleEndian

	head := []any{
		execMagic, execVersion,
		int64(qmax), int64(len(sig)), int64(cols(sig)), int64(len(trapsAtLevel)),
	}
	for _, v := range head {
		if err := binary.Write(bw, order, v); err != nil {
			return fmt.Errorf("kernel: encode header: %w", err)
		}
	}
	if err := writeString(bw, amp); err != nil {
		return err
	}
	if err := writeString(bw, logPath); err != nil {
		return err
	}

	for _, q := range trapsAtLevel {
		if err := binary.Write(bw, order, int64(q)); err != nil {
			return fmt.Errorf("kernel: encode trap map: %w", err)
		}
	}
	for _, table := range [][][]float64{leak, open, sig} {
		for _, row := range table {
			if err := binary.Write(bw, order, row); err != nil {
				return fmt.Errorf("kernel: encode table: %w", err)
			}
		}
	}
	return bw.Flush()
}

func decodeResponse(r io.Reader, rows, columns int) ([][]float64, int, error) {
	order := binary.LittleEndian

	var magic uint32
	if err := binary.Read(r, order, &magic); err != nil {
		return nil, 0, fmt.Errorf("read response magic: %w", err)
	}
	if magic != execMagic {
		return nil, 0, fmt.Errorf("bad response magic %#x", magic)
	}
	var status int64
	if err := binary.Read(r, order, &status); err != nil {
		return nil, 0, fmt.Errorf("read status: %w", err)
	}
	if status != 0 {
		return nil, int(status), nil
	}

	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, columns)
		if err := binary.Read(r, order, out[i]); err != nil {
			return nil, 0, fmt.Errorf("read corrected row %d: %w", i, err)
		}
	}
	return out, 0, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, int64(len(s))); err != nil {
		return fmt.Errorf("kernel: encode string: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("kernel: encode string: %w", err)
	}
	return nil
}
