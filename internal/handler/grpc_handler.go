package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/service"
)

// ApprovalServiceName is the fully qualified gRPC service name.
const ApprovalServiceName = "approvals.v1.ApprovalService"

// userIDMetadataKey carries the acting user on Approve and Reject.
const userIDMetadataKey = "x-user-id"

// ApprovalServiceServer is the gRPC surface of the approval engine. Requests
// and responses are google.protobuf.Struct documents with the same field names
// as the HTTP API.
type ApprovalServiceServer interface {
	Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Approve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPendingByUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetDocumentSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(srv ApprovalServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call structMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ApprovalServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ApprovalServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ApprovalServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ApprovalServiceDesc describes the service for grpc.Server.RegisterService.
var ApprovalServiceDesc = grpc.ServiceDesc{
	ServiceName: ApprovalServiceName,
	HandlerType: (*ApprovalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Create", ApprovalServiceServer.Create),
		unaryMethod("Approve", ApprovalServiceServer.Approve),
		unaryMethod("Reject", ApprovalServiceServer.Reject),
		unaryMethod("GetPendingByUser", ApprovalServiceServer.GetPendingByUser),
		unaryMethod("GetDocumentSnapshot", ApprovalServiceServer.GetDocumentSnapshot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "approvals/v1/approvals.proto",
}

// RegisterApprovalServiceServer registers srv on s.
func RegisterApprovalServiceServer(s grpc.ServiceRegistrar, srv ApprovalServiceServer) {
	s.RegisterService(&ApprovalServiceDesc, srv)
}

// GRPCHandler implements ApprovalServiceServer over the approval engine.
type GRPCHandler struct {
	approvals ApprovalServiceInterface
	logger    zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(approvals ApprovalServiceInterface, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		approvals: approvals,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// decisionRequest is the payload of Approve and Reject.
type decisionRequest struct {
	DocumentID string `json:"document_id"`
	GroupID    string `json:"group_id"`
	UserID     string `json:"user_id"`
}

// Create creates an approval document.
func (h *GRPCHandler) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in service.CreateApprovalRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("origin", in.Origin).
		Str("origin_ref", in.OriginRef).
		Int("groups", len(in.Groups)).
		Msg("gRPC Create called")

	created, err := h.approvals.CreateApproval(ctx, &in)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(created)
}

// Approve records an approval.
func (h *GRPCHandler) Approve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := decisionFromStruct(ctx, req)
	if err != nil {
		return nil, err
	}

	snap, err := h.approvals.Approve(ctx, in.DocumentID, in.GroupID, in.UserID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(snap)
}

// Reject records a rejection.
func (h *GRPCHandler) Reject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := decisionFromStruct(ctx, req)
	if err != nil {
		return nil, err
	}

	snap, err := h.approvals.Reject(ctx, in.DocumentID, in.GroupID, in.UserID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(snap)
}

// GetPendingByUser lists a user's actionable approvals.
func (h *GRPCHandler) GetPendingByUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	if err := requireUUID("user_id", in.UserID); err != nil {
		return nil, mapErrorToGRPC(err)
	}

	items, err := h.approvals.GetPendingByUser(ctx, in.UserID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]interface{}{"items": items, "total": len(items)})
}

// GetDocumentSnapshot returns a document's status tree.
func (h *GRPCHandler) GetDocumentSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		DocumentID string `json:"document_id"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	if err := requireUUID("document_id", in.DocumentID); err != nil {
		return nil, mapErrorToGRPC(err)
	}

	snap, err := h.approvals.GetDocumentSnapshot(ctx, in.DocumentID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(snap)
}

// ── conversions ──────────────────────────────────────────────────────────────

func decisionFromStruct(ctx context.Context, req *structpb.Struct) (*decisionRequest, error) {
	var in decisionRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		in.UserID = userIDFromMetadata(ctx)
	}
	if in.UserID == "" {
		return nil, status.Error(codes.Unauthenticated, "acting user is required")
	}
	for _, id := range []struct{ field, value string }{
		{"document_id", in.DocumentID},
		{"group_id", in.GroupID},
		{"user_id", in.UserID},
	} {
		if err := requireUUID(id.field, id.value); err != nil {
			return nil, mapErrorToGRPC(err)
		}
	}
	return &in, nil
}

func userIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(userIDMetadataKey); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func fromStruct(s *structpb.Struct, v interface{}) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// mapErrorToGRPC converts application errors to gRPC status errors.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeInvalidState, errors.ErrCodeNoApprovers:
		return status.Error(codes.FailedPrecondition, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, msg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
