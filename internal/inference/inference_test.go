package inference

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/ayusman/reptrack/internal/geometry"
)

func TestTensor_Shape(t *testing.T) {
	tensor, err := NewTensor([]int{2, 3}, []float32{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("NewTensor() error = %v", err)
	}

	if got := tensor.At(1, 2); got != 5 {
		t.Errorf("At(1,2) = %v, want 5", got)
	}

	flat, err := tensor.Reshape(6)
	if err != nil {
		t.Fatalf("Reshape() error = %v", err)
	}
	if flat.At(4) != 4 {
		t.Errorf("flat At(4) = %v, want 4", flat.At(4))
	}

	if _, err := tensor.Reshape(4); !errors.Is(err, ErrShape) {
		t.Errorf("Reshape(4) error = %v, want ErrShape", err)
	}
	if err := tensor.ExpectShape(2, -1); err != nil {
		t.Errorf("ExpectShape(2,-1) error = %v", err)
	}
	if err := tensor.ExpectShape(1, 2, 3); !errors.Is(err, ErrShape) {
		t.Errorf("ExpectShape(1,2,3) error = %v, want ErrShape", err)
	}
	if _, err := NewTensor([]int{2, 2}, []float32{1}); !errors.Is(err, ErrShape) {
		t.Errorf("NewTensor short data error = %v, want ErrShape", err)
	}
}

func TestImageTensor(t *testing.T) {
	img, err := geometry.NewImage(2, 1, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}
	tensor := ImageTensor(img)
	if err := tensor.ExpectShape(1, 3, 1, 2); err != nil {
		t.Fatalf("ExpectShape() error = %v", err)
	}
	if got := tensor.At(0, 1, 0, 1); got != 5 {
		t.Errorf("green of second pixel = %v, want 5", got)
	}
}

func TestSigmoid(t *testing.T) {
	if got := Sigmoid(0); got != 0.5 {
		t.Errorf("Sigmoid(0) = %v, want 0.5", got)
	}
	if got := Sigmoid(10); math.Abs(got-1) > 1e-4 {
		t.Errorf("Sigmoid(10) = %v, want ~1", got)
	}
}

func TestMockSession(t *testing.T) {
	m := NewMockSession()
	m.QueueError(errors.New("boom"))
	m.QueueOutputs(map[string]Tensor{"y": {Shape: []int{1}, Data: []float32{1}}})

	if _, err := m.Run(context.Background(), nil); err == nil {
		t.Error("first Run should return queued error")
	}
	out, err := m.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run error = %v", err)
	}
	if _, err := Output(out, "y"); err != nil {
		t.Errorf("Output(y) error = %v", err)
	}
	if _, err := Output(out, "z"); !errors.Is(err, ErrMissingOutput) {
		t.Errorf("Output(z) error = %v, want ErrMissingOutput", err)
	}
	if len(m.Calls()) != 2 {
		t.Errorf("Calls() = %d, want 2", len(m.Calls()))
	}
}

// TestHelperProcess is not a real test. It acts as the model service when
// the test binary is re-executed by helperSession.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("REPTRACK_HELPER_PROCESS") != "1" {
		return
	}
	in := bufio.NewReader(os.Stdin)
	for {
		var length uint32
		if err := binary.Read(in, binary.BigEndian, &length); err != nil {
			os.Exit(0)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(in, payload); err != nil {
			os.Exit(1)
		}
		var req processRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			os.Exit(1)
		}
		if os.Getenv("REPTRACK_HELPER_MODE") == "hang" {
			time.Sleep(time.Minute)
		}

		x := req.Inputs["x"]
		y := Tensor{Shape: x.Shape, Data: make([]float32, len(x.Data))}
		for i, v := range x.Data {
			y.Data[i] = v * 2
		}
		resp := processResponse{Outputs: map[string]Tensor{"y": y}}
		if req.Model == "broken" {
			resp = processResponse{Error: "model not loaded"}
		}
		out, _ := json.Marshal(resp)
		os.Stdout.Write(append(out, '\n'))
	}
}

func helperSession(t *testing.T, model, mode string) *ProcessSession {
	t.Helper()
	s, err := NewProcessSession(ProcessConfig{
		Command: []string{os.Args[0], "-test.run=TestHelperProcess"},
		Model:   model,
		Env:     []string{"REPTRACK_HELPER_PROCESS=1", "REPTRACK_HELPER_MODE=" + mode},
	})
	if err != nil {
		t.Fatalf("NewProcessSession() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessSession_RoundTrip(t *testing.T) {
	s := helperSession(t, "double.onnx", "")

	for i := 0; i < 2; i++ {
		out, err := s.Run(context.Background(), map[string]Tensor{
			"x": {Shape: []int{3}, Data: []float32{1, 2, 3}},
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		y, err := Output(out, "y")
		if err != nil {
			t.Fatalf("Output() error = %v", err)
		}
		if y.Data[2] != 6 {
			t.Errorf("y = %v, want doubled input", y.Data)
		}
	}
}

func TestProcessSession_ServiceError(t *testing.T) {
	s := helperSession(t, "broken", "")

	_, err := s.Run(context.Background(), map[string]Tensor{"x": {Shape: []int{1}, Data: []float32{1}}})
	if err == nil {
		t.Fatal("Run() should surface the service error")
	}
}

func TestProcessSession_ContextCancel(t *testing.T) {
	s := helperSession(t, "double.onnx", "hang")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := s.Run(ctx, map[string]Tensor{"x": {Shape: []int{1}, Data: []float32{1}}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
}
