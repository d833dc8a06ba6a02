package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCClient is a ChatClient implementation backed by a gRPC sidecar
// process, grounded on the teacher's pkg/agent/llm_grpc.go. Unlike the
// teacher, which depends on a hand-generated llmv1 proto package, this
// implementation speaks to the sidecar entirely in terms of the
// google.golang.org/protobuf well-known types (structpb.Struct for the
// request/response envelope) — see SPEC_FULL.md § 6.3 for the rationale: it
// keeps google.golang.org/protobuf and google.golang.org/grpc genuinely
// wired without requiring protoc/buf codegen in this repository.
type GRPCClient struct {
	conn        *grpc.ClientConn
	healthCheck grpc_health_v1.HealthClient
	stream      streamFunc
}

// streamFunc abstracts the one bidi-streaming RPC the sidecar exposes,
// allowing tests to substitute a fake without a real gRPC server.
type streamFunc func(ctx context.Context, req *structpb.Struct) (chunkStream, error)

// chunkStream is the minimal surface GRPCClient needs from the generated
// streaming client — satisfied by the real grpc.ClientStream wrapper built
// in DialGenerateStream, and by a fake in tests. Send/CloseSend keep the stream's
// write side open across the whole turn, so a tool result can be fed back to
// the sidecar and reflected in the chunks that follow, instead of the stream
// being a one-shot request/response-stream pair.
type chunkStream interface {
	Recv() (*structpb.Struct, error)
	Send(req *structpb.Struct) error
	CloseSend() error
}

// NewGRPCClient dials addr (typically localhost, the LLM sidecar runs
// colocated) with insecure transport credentials — if the sidecar is ever
// split across a network boundary this must be upgraded to TLS — and wires
// up the standard gRPC health-check service for readiness probing.
func NewGRPCClient(addr string, stream streamFunc) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial llm sidecar at %s: %w", addr, err)
	}
	return &GRPCClient{
		conn:        conn,
		healthCheck: grpc_health_v1.NewHealthClient(conn),
		stream:      stream,
	}, nil
}

// Healthy reports whether the sidecar's standard gRPC health service
// reports SERVING.
func (c *GRPCClient) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.healthCheck.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return false, fmt.Errorf("health check: %w", err)
	}
	return resp.Status == grpc_health_v1.HealthCheckResponse_SERVING, nil
}

// Generate sends input to the sidecar and streams back Chunks. When the
// sidecar emits a tool call mid-stream, Generate invokes it through invoke
// and sends the result back over the same still-open stream as a follow-up
// message, so the chunks the sidecar produces afterward can actually react
// to what the tool returned — matching the ChatClient contract (a single
// Generate call may drive any number of provider/tool round-trips before its
// channel closes).
func (c *GRPCClient) Generate(ctx context.Context, input GenerateInput, invoke ToolInvoker) (<-chan Chunk, error) {
	req, err := toRequestStruct(input)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	stream, err := c.stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start generate stream: %w", err)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.CloseSend()
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case ch <- ErrorChunk{Message: err.Error(), Retryable: false}:
				case <-ctx.Done():
				}
				return
			}

			chunk, call := fromResponseStruct(resp)
			if call != nil && invoke != nil {
				result, invokeErr := invoke(ctx, *call)
				if invokeErr != nil {
					result = fmt.Sprintf("Error: %s", invokeErr.Error())
				}
				toolResult, encErr := toToolResultStruct(*call, result)
				if encErr != nil {
					slog.Warn("failed to encode tool result for sidecar", "tool", call.Name, "error", encErr)
				} else if sendErr := stream.Send(toolResult); sendErr != nil {
					select {
					case ch <- ErrorChunk{Message: sendErr.Error(), Retryable: false}:
					case <-ctx.Done():
					}
					return
				}
			}
			if chunk != nil {
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// generateMethod is the sidecar's single bidi-streaming RPC, addressed by
// raw method path since no protoc-generated client stub exists in this
// repository (§ 6.3).
const generateMethod = "/morgana.llm.v1.ChatSidecar/Generate"

// structStream adapts a raw grpc.ClientStream to chunkStream.
type structStream struct{ grpc.ClientStream }

func (s structStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s structStream) Send(req *structpb.Struct) error {
	return s.ClientStream.SendMsg(req)
}

// DialGenerateStream opens the sidecar's Generate RPC as a bidirectional
// chunkStream over conn, without requiring a protoc-generated service
// client — grpc.ClientConn.NewStream only needs a method path and a codec
// capable of (de)serializing structpb.Struct, which the grpc-go runtime
// already provides via the protobuf codec registered for proto.Message. The
// send side is left open after the initial request so a mid-turn tool
// result can be written back to the sidecar later in the same stream;
// callers close it (via chunkStream.CloseSend) once the turn is over.
func DialGenerateStream(ctx context.Context, conn *grpc.ClientConn, req *structpb.Struct) (chunkStream, error) {
	cs, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true, ClientStreams: true}, generateMethod)
	if err != nil {
		return nil, fmt.Errorf("open generate stream: %w", err)
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send generate request: %w", err)
	}
	return structStream{cs}, nil
}

// NewSidecarClient dials addr and wires DialGenerateStream as the stream
// source, giving a ready-to-use GRPCClient with no test-only indirection.
func NewSidecarClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial llm sidecar at %s: %w", addr, err)
	}
	return &GRPCClient{
		conn:        conn,
		healthCheck: grpc_health_v1.NewHealthClient(conn),
		stream: func(ctx context.Context, req *structpb.Struct) (chunkStream, error) {
			return DialGenerateStream(ctx, conn, req)
		},
	}, nil
}

func toRequestStruct(input GenerateInput) (*structpb.Struct, error) {
	msgs := make([]any, 0, len(input.Messages))
	for _, m := range input.Messages {
		msgs = append(msgs, map[string]any{
			"role":         m.Role,
			"content":      m.Content,
			"tool_call_id": m.ToolCallID,
			"tool_name":    m.ToolName,
		})
	}
	tools := make([]any, 0, len(input.Tools))
	for _, t := range input.Tools {
		var schema any
		if len(t.ParametersSchema) > 0 {
			if err := json.Unmarshal(t.ParametersSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %q has invalid parameters schema: %w", t.Name, err)
			}
		}
		tools = append(tools, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  schema,
		})
	}

	return structpb.NewStruct(map[string]any{
		"conversation_id": input.ConversationID,
		"messages":        msgs,
		"tools":           tools,
	})
}

// toToolResultStruct encodes a tool's output as a follow-up message on an
// already-open stream — distinguished from the initial request by its
// "kind" tag, mirroring the tagging fromResponseStruct reads on the way in.
func toToolResultStruct(call ToolCall, result string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":      "tool_result",
		"call_id":   call.ID,
		"tool_name": call.Name,
		"content":   result,
	})
}

func fromResponseStruct(resp *structpb.Struct) (Chunk, *ToolCall) {
	fields := resp.GetFields()

	switch fields["kind"].GetStringValue() {
	case "text":
		return TextChunk{Content: fields["content"].GetStringValue()}, nil
	case "thinking":
		return ThinkingChunk{Content: fields["content"].GetStringValue()}, nil
	case "tool_call":
		call := ToolCall{
			ID:   fields["call_id"].GetStringValue(),
			Name: fields["name"].GetStringValue(),
		}
		if args := fields["arguments"].GetStructValue(); args != nil {
			call.Arguments = args.AsMap()
		}
		return ToolCallChunk{CallID: call.ID, Name: call.Name, Arguments: call.Arguments}, &call
	case "usage":
		return UsageChunk{
			InputTokens:  int(fields["input_tokens"].GetNumberValue()),
			OutputTokens: int(fields["output_tokens"].GetNumberValue()),
			TotalTokens:  int(fields["total_tokens"].GetNumberValue()),
		}, nil
	case "error":
		return ErrorChunk{
			Message:   fields["message"].GetStringValue(),
			Code:      fields["code"].GetStringValue(),
			Retryable: fields["retryable"].GetBoolValue(),
		}, nil
	default:
		slog.Warn("unknown chunk kind from llm sidecar, skipping", "kind", fields["kind"].GetStringValue())
		return nil, nil
	}
}
