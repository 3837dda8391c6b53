package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/xmh1011/go-multiraft/param"
	"github.com/xmh1011/go-multiraft/raft/api"
)

const serviceName = "lanraft.Raft"

// replicationFrame 是 SendReplicationStream 流上的一帧：第一帧只带 Header，其余帧只带 Entry。
type replicationFrame struct {
	Header *param.ReplicationStreamHeader
	Entry  *param.ReplicationStreamEntry
}

// raftServiceDesc 描述 lanraft.Raft 服务。消息用 gob 编解码，所以这里直接手写描述符而不依赖生成代码。
var raftServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*api.RaftService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Write", func(s api.RaftService, req *param.WriteRequest, resp *param.Response) error {
			return s.Write(req, resp)
		}),
		unaryMethod("Read", func(s api.RaftService, req *param.ReadRequest, resp *param.Response) error {
			return s.Read(req, resp)
		}),
		unaryMethod("ProcessKernRequest", func(s api.RaftService, req *param.KernRequest, _ *emptypb.Empty) error {
			return s.ProcessKernRequest(req)
		}),
		unaryMethod("RequestVote", func(s api.RaftService, req *param.VoteRequest, resp *param.VoteResponse) error {
			return s.RequestVote(req, resp)
		}),
		unaryMethod("AddServer", func(s api.RaftService, req *param.AddServerRequest, _ *emptypb.Empty) error {
			return s.AddServer(req)
		}),
		unaryMethod("RemoveServer", func(s api.RaftService, req *param.RemoveServerRequest, _ *emptypb.Empty) error {
			return s.RemoveServer(req)
		}),
		unaryMethod("SendHeartbeat", func(s api.RaftService, req *param.Heartbeat, resp *param.HeartbeatResponse) error {
			return s.SendHeartbeat(req, resp)
		}),
		unaryMethod("SendTimeoutNow", func(s api.RaftService, req *param.TimeoutNow, _ *emptypb.Empty) error {
			return s.SendTimeoutNow(req)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SendReplicationStream",
			Handler:       replicationStreamHandler,
			ClientStreams: true,
		},
		{
			StreamName:    "GetSnapshot",
			Handler:       getSnapshotHandler,
			ServerStreams: true,
		},
	},
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// unaryMethod 把一个 (args, reply) error 形式的服务方法包装成 gRPC unary handler。
func unaryMethod[Req, Resp any](name string, call func(api.RaftService, *Req, *Resp) error) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handle := func(_ context.Context, req any) (any, error) {
				out := new(Resp)
				if err := call(srv.(api.RaftService), req.(*Req), out); err != nil {
					return nil, toStatus(err)
				}
				return out, nil
			}
			if interceptor == nil {
				return handle(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, handle)
		},
	}
}

// replicationStreamHandler 收齐 header 与全部 entry 帧后交给服务处理，最后回一条汇总响应。
func replicationStreamHandler(srv any, stream grpc.ServerStream) error {
	var req param.ReplicationStream
	gotHeader := false
	for {
		var frame replicationFrame
		err := stream.RecvMsg(&frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch {
		case frame.Header != nil:
			if gotHeader {
				return toStatus(fmt.Errorf("%w: duplicate stream header", api.ErrMalformedRequest))
			}
			req.Header = *frame.Header
			gotHeader = true
		case frame.Entry != nil:
			if !gotHeader {
				return toStatus(fmt.Errorf("%w: entry before stream header", api.ErrMalformedRequest))
			}
			req.Entries = append(req.Entries, *frame.Entry)
		}
	}
	if !gotHeader {
		return toStatus(fmt.Errorf("%w: missing stream header", api.ErrMalformedRequest))
	}

	var resp param.ReplicationStreamResponse
	if err := srv.(api.RaftService).SendReplicationStream(&req, &resp); err != nil {
		return toStatus(err)
	}
	return stream.SendMsg(&resp)
}

// getSnapshotHandler 读取一个请求，然后按块把快照推回去。
func getSnapshotHandler(srv any, stream grpc.ServerStream) error {
	var req param.GetSnapshotRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	var reply param.SnapshotReply
	if err := srv.(api.RaftService).GetSnapshot(&req, &reply); err != nil {
		return toStatus(err)
	}
	for i := range reply.Chunks {
		if err := stream.SendMsg(&reply.Chunks[i]); err != nil {
			return err
		}
	}
	return nil
}

var errorCodes = map[error]codes.Code{
	api.ErrNotLeader:                  codes.FailedPrecondition,
	api.ErrLaneNotFound:               codes.NotFound,
	api.ErrStaleTerm:                  codes.OutOfRange,
	api.ErrTimeout:                    codes.DeadlineExceeded,
	api.ErrMembershipChangeInProgress: codes.Aborted,
	api.ErrMalformedRequest:           codes.InvalidArgument,
}

// toStatus 把哨兵错误映射为 gRPC 状态码，其余错误使用 codes.Unknown。
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return status.Error(code, err.Error())
		}
	}
	return status.Error(codes.Unknown, err.Error())
}

// fromStatus 是 toStatus 的逆过程，客户端因此可以用 errors.Is 判断。
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for sentinel, code := range errorCodes {
		if st.Code() != code {
			continue
		}
		if st.Message() == sentinel.Error() {
			return sentinel
		}
		return fmt.Errorf("%w: %s", sentinel, st.Message())
	}
	return err
}
