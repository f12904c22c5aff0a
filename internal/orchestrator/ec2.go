package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/gluk-w/shellbridge/internal/logutil"
)

// EC2API is the slice of the EC2 client the orchestrator uses.
type EC2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// LaunchConfig holds the fixed parameters of every launched instance.
type LaunchConfig struct {
	AMIID            string
	InstanceType     string
	SecurityGroupIDs []string
	// KeyName is the EC2 key pair installed on the instance. Optional when
	// the AMI already trusts the service key.
	KeyName    string
	NamePrefix string
}

// EC2Orchestrator launches and terminates EC2 instances.
type EC2Orchestrator struct {
	client EC2API
	launch LaunchConfig
	now    func() time.Time
}

func NewEC2Orchestrator(client EC2API, launch LaunchConfig) (*EC2Orchestrator, error) {
	if client == nil {
		return nil, errors.New("ec2 client is required")
	}
	if launch.InstanceType == "" {
		return nil, errors.New("instance type is required")
	}
	if launch.NamePrefix == "" {
		launch.NamePrefix = "gemini-session"
	}
	return &EC2Orchestrator{client: client, launch: launch, now: time.Now}, nil
}

func (o *EC2Orchestrator) BackendName() string { return "ec2" }

func (o *EC2Orchestrator) CreateInstance(ctx context.Context, params CreateParams) (Instance, error) {
	if o.launch.AMIID == "" {
		return Instance{}, errors.New("no AMI configured")
	}
	name := params.Name
	if name == "" {
		name = InstanceName(o.launch.NamePrefix, o.now())
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(o.launch.AMIID),
		InstanceType: types.InstanceType(o.launch.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         []types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}},
		}},
	}
	if len(o.launch.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = o.launch.SecurityGroupIDs
	}
	if o.launch.KeyName != "" {
		input.KeyName = aws.String(o.launch.KeyName)
	}

	log.Printf("[orchestrator] launching %s instance %s from %s", o.launch.InstanceType, logutil.SanitizeForLog(name), o.launch.AMIID)
	out, err := o.client.RunInstances(ctx, input)
	if err != nil {
		return Instance{}, fmt.Errorf("run instances: %w", err)
	}
	if len(out.Instances) == 0 {
		return Instance{}, errors.New("no instances created")
	}

	inst := toInstance(out.Instances[0])
	if inst.Name == "" {
		inst.Name = name
	}
	if inst.State == "" {
		inst.State = StatePending
	}
	log.Printf("[orchestrator] created instance %s (%s)", inst.ID, logutil.SanitizeForLog(inst.Name))
	return inst, nil
}

func (o *EC2Orchestrator) DeleteInstance(ctx context.Context, instanceID string) (string, error) {
	log.Printf("[orchestrator] terminating instance %s", logutil.SanitizeForLog(instanceID))
	out, err := o.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return "", fmt.Errorf("terminate instance %s: %w", instanceID, err)
	}
	for _, change := range out.TerminatingInstances {
		if aws.ToString(change.InstanceId) == instanceID && change.CurrentState != nil {
			return string(change.CurrentState.Name), nil
		}
	}
	return "shutting-down", nil
}

func (o *EC2Orchestrator) DescribeInstances(ctx context.Context, ids []string) ([]Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// An instance-id filter, unlike InstanceIds, tolerates ids EC2 has
	// already forgotten.
	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{{Name: aws.String("instance-id"), Values: ids}},
	}

	var result []Instance
	pages := ec2.NewDescribeInstancesPaginator(o.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				result = append(result, toInstance(inst))
			}
		}
	}
	return result, nil
}

func toInstance(inst types.Instance) Instance {
	out := Instance{
		ID:         aws.ToString(inst.InstanceId),
		PublicIP:   aws.ToString(inst.PublicIpAddress),
		PublicDNS:  aws.ToString(inst.PublicDnsName),
		LaunchedAt: aws.ToTime(inst.LaunchTime),
	}
	if inst.State != nil {
		out.State = string(inst.State.Name)
	}
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == "Name" {
			out.Name = aws.ToString(tag.Value)
		}
	}
	return out
}
