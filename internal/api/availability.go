package api

import (
	"context"
	"errors"
	"time"

	"stayfinder/internal/domain"
	"stayfinder/internal/logging"
	"stayfinder/internal/models"
	"stayfinder/internal/service"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	availabilityServiceName = "stayfinder.booking.v1.AvailabilityService"
	methodCheckAvailability = "/" + availabilityServiceName + "/CheckAvailability"
	methodListBookedRanges  = "/" + availabilityServiceName + "/ListBookedRanges"
)

// AvailabilityServer answers calendar questions for partner systems. Messages are
// google.protobuf.Struct so no generated code is needed.
type AvailabilityServer interface {
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBookedRanges(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AvailabilityBackend is the part of the booking service the gRPC API needs.
type AvailabilityBackend interface {
	CheckAvailability(ctx context.Context, req service.BookingRequest) (*service.Quote, error)
	BookedRanges(ctx context.Context, listingID int64, from, to time.Time) ([]models.BookedRange, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
		{MethodName: "ListBookedRanges", Handler: listBookedRangesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stayfinder/booking/v1/availability.proto",
}

// RegisterAvailabilityServer attaches srv to s.
func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCheckAvailability}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).CheckAvailability(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listBookedRangesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).ListBookedRanges(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListBookedRanges}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).ListBookedRanges(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AvailabilityClient calls the availability service over conn.
type AvailabilityClient struct {
	cc grpc.ClientConnInterface
}

func NewAvailabilityClient(cc grpc.ClientConnInterface) *AvailabilityClient {
	return &AvailabilityClient{cc: cc}
}

func (c *AvailabilityClient) CheckAvailability(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodCheckAvailability, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AvailabilityClient) ListBookedRanges(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListBookedRanges, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AvailabilityService implements AvailabilityServer on top of the booking service.
type AvailabilityService struct {
	bookings AvailabilityBackend
	logger   *zerolog.Logger
}

func NewAvailabilityService(bookings AvailabilityBackend, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{bookings: bookings, logger: logger}
}

// CheckAvailability is a dry-run admission. Refusals come back as available=false with
// the rejection code in reason; only an unknown listing is a NotFound status.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	listingID, err := intField(fields, "listing_id")
	if err != nil {
		return nil, err
	}
	guests, err := intField(fields, "guests")
	if err != nil {
		return nil, err
	}

	quote, err := s.bookings.CheckAvailability(ctx, service.BookingRequest{
		ListingID: listingID,
		CheckIn:   fields["check_in"].GetStringValue(),
		CheckOut:  fields["check_out"].GetStringValue(),
		Guests:    int(guests),
	})
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		if r, ok := domain.AsRejection(err); ok {
			return structpb.NewStruct(map[string]any{
				"available": false,
				"reason":    r.Code,
				"message":   err.Error(),
			})
		}
		logging.FromContext(ctx, s.logger).Error().Err(err).Int64("listing_id", listingID).Msg("availability check failed")
		return nil, status.Error(codes.Internal, "failed to check availability")
	}

	return structpb.NewStruct(map[string]any{
		"available":     true,
		"reason":        "",
		"nights":        quote.Price.Nights,
		"base_price":    quote.Price.BasePrice,
		"add_ons_price": quote.Price.AddOnsPrice,
		"total_price":   quote.Price.TotalPrice,
	})
}

// ListBookedRanges returns the pending and confirmed stays of a listing, optionally
// limited by from/to.
func (s *AvailabilityService) ListBookedRanges(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	listingID, err := intField(fields, "listing_id")
	if err != nil {
		return nil, err
	}
	if listingID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "listing_id is required")
	}
	from, err := optionalDate(fields, "from")
	if err != nil {
		return nil, err
	}
	to, err := optionalDate(fields, "to")
	if err != nil {
		return nil, err
	}

	ranges, err := s.bookings.BookedRanges(ctx, listingID, from, to)
	if errors.Is(err, domain.ErrListingNotFound) {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	if err != nil {
		logging.FromContext(ctx, s.logger).Error().Err(err).Int64("listing_id", listingID).Msg("list booked ranges failed")
		return nil, status.Error(codes.Internal, "failed to list booked ranges")
	}

	out := make([]any, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, map[string]any{
			"booking_id": r.BookingID,
			"check_in":   r.CheckIn.Format(models.DateLayout),
			"check_out":  r.CheckOut.Format(models.DateLayout),
			"status":     r.Status,
		})
	}
	return structpb.NewStruct(map[string]any{"listing_id": listingID, "ranges": out})
}

func intField(fields map[string]*structpb.Value, name string) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	if n.NumberValue != float64(int64(n.NumberValue)) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int64(n.NumberValue), nil
}

func optionalDate(fields map[string]*structpb.Value, name string) (time.Time, error) {
	raw := fields[name].GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s: %v", name, err)
	}
	return d, nil
}
