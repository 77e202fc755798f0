package inventory

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/hybridcompute/armhybridcompute/v2"
	"github.com/Azure/go-autorest/autorest/to"
	"github.com/sirupsen/logrus"
)

// Inventory lists machines and their extensions
type Inventory interface {
	ListMachines(ctx context.Context) ([]Machine, error)
	ListExtensions(ctx context.Context, machine Machine) ([]Extension, error)
}

// MachinesClient is the subset of the Azure SDK machines client we need.
// It exists to allow lightweight mocking in unit tests.
type MachinesClient interface {
	NewListBySubscriptionPager(options *armhybridcompute.MachinesClientListBySubscriptionOptions) *runtime.Pager[armhybridcompute.MachinesClientListBySubscriptionResponse]
	NewListByResourceGroupPager(resourceGroupName string, options *armhybridcompute.MachinesClientListByResourceGroupOptions) *runtime.Pager[armhybridcompute.MachinesClientListByResourceGroupResponse]
}

// MachineExtensionsClient is the subset of the Azure SDK machine extensions client we need.
type MachineExtensionsClient interface {
	NewListPager(resourceGroupName, machineName string, options *armhybridcompute.MachineExtensionsClientListOptions) *runtime.Pager[armhybridcompute.MachineExtensionsClientListResponse]
}

// AzureInventory reads Arc machines through Azure Resource Manager
type AzureInventory struct {
	subscriptionID string
	resourceGroups []string
	machines       MachinesClient
	extensions     MachineExtensionsClient
	logger         *logrus.Logger
}

// NewAzureInventory creates the hybrid compute clients for a subscription.
// When resourceGroups is empty the whole subscription is listed.
func NewAzureInventory(subscriptionID string, resourceGroups []string, cred azcore.TokenCredential, options *arm.ClientOptions, logger *logrus.Logger) (*AzureInventory, error) {
	machinesClient, err := armhybridcompute.NewMachinesClient(subscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create hybrid compute machines client: %w", err)
	}

	extensionsClient, err := armhybridcompute.NewMachineExtensionsClient(subscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create hybrid compute extensions client: %w", err)
	}

	return NewAzureInventoryWithClients(subscriptionID, resourceGroups, machinesClient, extensionsClient, logger), nil
}

// NewAzureInventoryWithClients allows injecting SDK clients (primarily for tests)
func NewAzureInventoryWithClients(subscriptionID string, resourceGroups []string, machines MachinesClient, extensions MachineExtensionsClient, logger *logrus.Logger) *AzureInventory {
	if logger == nil {
		logger = logrus.New()
	}
	return &AzureInventory{
		subscriptionID: subscriptionID,
		resourceGroups: resourceGroups,
		machines:       machines,
		extensions:     extensions,
		logger:         logger,
	}
}

// ListMachines returns every Arc machine in scope. Any paging failure is fatal for the scan.
func (a *AzureInventory) ListMachines(ctx context.Context) ([]Machine, error) {
	if len(a.resourceGroups) == 0 {
		a.logger.Infof("Listing Arc machines in subscription %s", a.subscriptionID)
		var out []Machine
		pager := a.machines.NewListBySubscriptionPager(nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list Arc machines in subscription %s: %w", a.subscriptionID, err)
			}
			out = a.appendMachines(out, page.Value)
		}
		a.logger.Infof("Found %d Arc machines", len(out))
		return out, nil
	}

	var out []Machine
	for _, group := range a.resourceGroups {
		a.logger.Infof("Listing Arc machines in resource group %s", group)
		pager := a.machines.NewListByResourceGroupPager(group, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list Arc machines in resource group %s: %w", group, err)
			}
			out = a.appendMachines(out, page.Value)
		}
	}
	a.logger.Infof("Found %d Arc machines in %d resource groups", len(out), len(a.resourceGroups))
	return out, nil
}

func (a *AzureInventory) appendMachines(out []Machine, values []*armhybridcompute.Machine) []Machine {
	for _, m := range values {
		if m == nil {
			continue
		}
		out = append(out, MachineFromSDK(m, a.subscriptionID))
	}
	return out
}

// ListExtensions returns the extensions currently deployed on a machine
func (a *AzureInventory) ListExtensions(ctx context.Context, machine Machine) ([]Extension, error) {
	var out []Extension
	pager := a.extensions.NewListPager(machine.ResourceGroup, machine.Name, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list extensions for machine %s/%s: %w", machine.ResourceGroup, machine.Name, err)
		}
		for _, ext := range page.Value {
			if ext == nil {
				continue
			}
			out = append(out, ExtensionFromSDK(ext, machine.Location))
		}
	}
	return out, nil
}

// MachineFromSDK flattens the SDK machine resource into the fields the audit reads
func MachineFromSDK(m *armhybridcompute.Machine, subscriptionID string) Machine {
	machine := Machine{
		ID:             to.String(m.ID),
		Name:           to.String(m.Name),
		Location:       to.String(m.Location),
		SubscriptionID: subscriptionID,
		OSType:         OSTypeOther,
	}

	if machine.ID != "" {
		if rid, err := arm.ParseResourceID(machine.ID); err == nil {
			machine.ResourceGroup = rid.ResourceGroupName
			if rid.SubscriptionID != "" {
				machine.SubscriptionID = rid.SubscriptionID
			}
		}
	}

	p := m.Properties
	if p == nil {
		return machine
	}

	machine.OSType = ParseOSType(to.String(p.OSType))
	machine.OSSku = to.String(p.OSSKU)
	machine.AgentVersion = to.String(p.AgentVersion)
	if p.Status != nil {
		machine.Status = string(*p.Status)
	}
	if p.AgentConfiguration != nil && p.AgentConfiguration.ConfigMode != nil {
		machine.AgentConfigurationMode = string(*p.AgentConfiguration.ConfigMode)
	}
	if p.AgentUpgrade != nil {
		machine.AutomaticUpgradeEnabled = to.Bool(p.AgentUpgrade.EnableAutomaticUpgrade)
	}
	return machine
}

// ExtensionFromSDK flattens an SDK machine extension; the installed version falls back to the instance view
func ExtensionFromSDK(ext *armhybridcompute.MachineExtension, machineLocation string) Extension {
	out := Extension{
		Name:     to.String(ext.Name),
		Location: to.String(ext.Location),
	}
	if out.Location == "" {
		out.Location = machineLocation
	}

	p := ext.Properties
	if p == nil {
		return out
	}
	out.Type = to.String(p.Type)
	out.Publisher = to.String(p.Publisher)
	out.InstalledVersion = to.String(p.TypeHandlerVersion)
	if out.InstalledVersion == "" && p.InstanceView != nil {
		out.InstalledVersion = to.String(p.InstanceView.TypeHandlerVersion)
	}
	return out
}
