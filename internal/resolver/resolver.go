// Package resolver turns an instance identifier into a connectable address by
// querying EC2 instance metadata. It holds no state and has no side effects,
// so Resolve is safe to call repeatedly.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/gluk-w/shellbridge/internal/logutil"
)

// StateRunning is the only lifecycle state with a usable address.
const StateRunning = string(types.InstanceStateNameRunning)

// Result is a resolved instance.
type Result struct {
	Address string `json:"publicIp"`
	State   string `json:"state"`
}

// Resolver resolves instance identifiers.
type Resolver interface {
	Resolve(ctx context.Context, instanceID string) (Result, error)
}

// DescribeInstancesAPI is the slice of the EC2 client the resolver needs.
type DescribeInstancesAPI interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// DescribeInstancesFunc adapts a function to DescribeInstancesAPI.
type DescribeInstancesFunc func(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)

func (f DescribeInstancesFunc) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return f(ctx, params, optFns...)
}

// EC2Resolver resolves instances through DescribeInstances.
type EC2Resolver struct {
	client DescribeInstancesAPI
}

func New(client DescribeInstancesAPI) *EC2Resolver {
	return &EC2Resolver{client: client}
}

// Resolve returns the public address of a running instance. It fails with
// ErrNotFound, ErrNotRunning or ErrAddressUnavailable (see Error), or with a
// wrapped API error when EC2 itself could not be queried.
func (r *EC2Resolver) Resolve(ctx context.Context, instanceID string) (Result, error) {
	if instanceID == "" {
		return Result{}, &Error{Kind: NotFound}
	}

	out, err := r.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if isNotFound(err) {
			return Result{}, &Error{Kind: NotFound, InstanceID: instanceID}
		}
		return Result{}, fmt.Errorf("describe instance %s: %w", instanceID, err)
	}

	inst, ok := FindInstance(out, instanceID)
	if !ok {
		return Result{}, &Error{Kind: NotFound, InstanceID: instanceID}
	}

	state := InstanceState(inst)
	if state != StateRunning {
		return Result{}, &Error{Kind: NotRunning, InstanceID: instanceID, State: state}
	}

	addr := aws.ToString(inst.PublicIpAddress)
	if addr == "" {
		return Result{}, &Error{Kind: AddressUnavailable, InstanceID: instanceID, State: state}
	}

	log.Printf("[resolver] instance %s is %s at %s", logutil.SanitizeForLog(instanceID), state, addr)
	return Result{Address: addr, State: state}, nil
}

// FindInstance returns the first instance in out, preferring an exact id
// match.
func FindInstance(out *ec2.DescribeInstancesOutput, instanceID string) (types.Instance, bool) {
	if out == nil {
		return types.Instance{}, false
	}
	var first *types.Instance
	for i := range out.Reservations {
		for j := range out.Reservations[i].Instances {
			inst := &out.Reservations[i].Instances[j]
			if aws.ToString(inst.InstanceId) == instanceID {
				return *inst, true
			}
			if first == nil {
				first = inst
			}
		}
	}
	if first == nil {
		return types.Instance{}, false
	}
	return *first, true
}

// InstanceState returns the lifecycle state name, or "unknown".
func InstanceState(inst types.Instance) string {
	if inst.State == nil || inst.State.Name == "" {
		return "unknown"
	}
	return string(inst.State.Name)
}

// isNotFound reports whether err is EC2's answer for an id that does not exist.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "InvalidInstanceID.NotFound", "InvalidInstanceID.Malformed":
		return true
	}
	return false
}
