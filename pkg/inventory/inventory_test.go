package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/hybridcompute/armhybridcompute/v2"
	"github.com/sirupsen/logrus"
)

func ptr[T any](v T) *T { return &v }

// pagesOf builds a pager that serves the given pages in order
func pagesOf[T any](pages []T, err error) *runtime.Pager[T] {
	index := 0
	return runtime.NewPager(runtime.PagingHandler[T]{
		More: func(T) bool { return index < len(pages) },
		Fetcher: func(ctx context.Context, _ *T) (T, error) {
			var zero T
			if err != nil {
				return zero, err
			}
			if index >= len(pages) {
				return zero, nil
			}
			page := pages[index]
			index++
			return page, nil
		},
	})
}

type fakeMachinesClient struct {
	subscriptionPages []armhybridcompute.MachinesClientListBySubscriptionResponse
	groupPages        map[string][]armhybridcompute.MachinesClientListByResourceGroupResponse
	err               error
}

func (f *fakeMachinesClient) NewListBySubscriptionPager(options *armhybridcompute.MachinesClientListBySubscriptionOptions) *runtime.Pager[armhybridcompute.MachinesClientListBySubscriptionResponse] {
	return pagesOf(f.subscriptionPages, f.err)
}

func (f *fakeMachinesClient) NewListByResourceGroupPager(resourceGroupName string, options *armhybridcompute.MachinesClientListByResourceGroupOptions) *runtime.Pager[armhybridcompute.MachinesClientListByResourceGroupResponse] {
	return pagesOf(f.groupPages[resourceGroupName], f.err)
}

type fakeExtensionsClient struct {
	pages map[string][]armhybridcompute.MachineExtensionsClientListResponse
	err   error
}

func (f *fakeExtensionsClient) NewListPager(resourceGroupName, machineName string, options *armhybridcompute.MachineExtensionsClientListOptions) *runtime.Pager[armhybridcompute.MachineExtensionsClientListResponse] {
	return pagesOf(f.pages[resourceGroupName+"/"+machineName], f.err)
}

func sdkMachine(group, name, osType string) *armhybridcompute.Machine {
	status := armhybridcompute.StatusTypes("Connected")
	mode := armhybridcompute.AgentConfigurationMode("full")
	return &armhybridcompute.Machine{
		ID:       ptr("/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/" + group + "/providers/Microsoft.HybridCompute/machines/" + name),
		Name:     ptr(name),
		Location: ptr("eastus"),
		Properties: &armhybridcompute.MachineProperties{
			OSType:             ptr(osType),
			OSSKU:              ptr("Ubuntu 20.04.6 LTS"),
			AgentVersion:       ptr("1.40.02664.1629"),
			Status:             &status,
			AgentConfiguration: &armhybridcompute.AgentConfiguration{ConfigMode: &mode},
			AgentUpgrade:       &armhybridcompute.AgentUpgrade{EnableAutomaticUpgrade: ptr(true)},
		},
	}
}

func TestMachineFromSDK(t *testing.T) {
	got := MachineFromSDK(sdkMachine("rg-edge", "node-1", "Linux"), "fallback-sub")

	want := Machine{
		ID:                      "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg-edge/providers/Microsoft.HybridCompute/machines/node-1",
		Name:                    "node-1",
		ResourceGroup:           "rg-edge",
		SubscriptionID:          "00000000-0000-0000-0000-000000000001",
		Location:                "eastus",
		OSType:                  OSTypeLinux,
		OSSku:                   "Ubuntu 20.04.6 LTS",
		Status:                  "Connected",
		AgentConfigurationMode:  "full",
		AutomaticUpgradeEnabled: true,
		AgentVersion:            "1.40.02664.1629",
	}
	if got != want {
		t.Errorf("MachineFromSDK() = %+v, want %+v", got, want)
	}
}

func TestMachineFromSDKWithoutProperties(t *testing.T) {
	got := MachineFromSDK(&armhybridcompute.Machine{Name: ptr("bare")}, "sub")
	if got.Name != "bare" || got.SubscriptionID != "sub" || got.OSType != OSTypeOther {
		t.Errorf("unexpected machine: %+v", got)
	}
	if got.AgentVersion != "" || got.Status != "" || got.AutomaticUpgradeEnabled {
		t.Errorf("expected empty agent fields, got %+v", got)
	}
}

func TestMachineFromSDKAutomaticUpgrade(t *testing.T) {
	tests := []struct {
		name    string
		upgrade *armhybridcompute.AgentUpgrade
		want    bool
	}{
		{name: "enabled", upgrade: &armhybridcompute.AgentUpgrade{EnableAutomaticUpgrade: ptr(true)}, want: true},
		{name: "disabled", upgrade: &armhybridcompute.AgentUpgrade{EnableAutomaticUpgrade: ptr(false)}, want: false},
		{name: "flag unset", upgrade: &armhybridcompute.AgentUpgrade{}, want: false},
		{name: "no upgrade settings", upgrade: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sdkMachine("rg-edge", "node-1", "Linux")
			m.Properties.AgentUpgrade = tt.upgrade
			if got := MachineFromSDK(m, "sub").AutomaticUpgradeEnabled; got != tt.want {
				t.Errorf("AutomaticUpgradeEnabled = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtensionFromSDK(t *testing.T) {
	tests := []struct {
		name string
		ext  *armhybridcompute.MachineExtension
		want Extension
	}{
		{
			name: "version from properties",
			ext: &armhybridcompute.MachineExtension{
				Name:     ptr("AzureMonitorLinuxAgent"),
				Location: ptr("westus2"),
				Properties: &armhybridcompute.MachineExtensionProperties{
					Type:               ptr("AzureMonitorLinuxAgent"),
					Publisher:          ptr("Microsoft.Azure.Monitor"),
					TypeHandlerVersion: ptr("1.29.4"),
				},
			},
			want: Extension{Name: "AzureMonitorLinuxAgent", Type: "AzureMonitorLinuxAgent", Publisher: "Microsoft.Azure.Monitor", Location: "westus2", InstalledVersion: "1.29.4"},
		},
		{
			name: "version from instance view and machine location",
			ext: &armhybridcompute.MachineExtension{
				Name: ptr("MDE.Linux"),
				Properties: &armhybridcompute.MachineExtensionProperties{
					Type:         ptr("MDE.Linux"),
					Publisher:    ptr("Microsoft.Azure.AzureDefenderForServers"),
					InstanceView: &armhybridcompute.MachineExtensionInstanceView{TypeHandlerVersion: ptr("1.0.4.0")},
				},
			},
			want: Extension{Name: "MDE.Linux", Type: "MDE.Linux", Publisher: "Microsoft.Azure.AzureDefenderForServers", Location: "eastus", InstalledVersion: "1.0.4.0"},
		},
		{
			name: "no properties",
			ext:  &armhybridcompute.MachineExtension{Name: ptr("broken")},
			want: Extension{Name: "broken", Location: "eastus"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtensionFromSDK(tt.ext, "eastus"); got != tt.want {
				t.Errorf("ExtensionFromSDK() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestListMachinesBySubscription(t *testing.T) {
	client := &fakeMachinesClient{
		subscriptionPages: []armhybridcompute.MachinesClientListBySubscriptionResponse{
			{MachineListResult: armhybridcompute.MachineListResult{Value: []*armhybridcompute.Machine{sdkMachine("rg1", "a", "Linux"), nil}}},
			{MachineListResult: armhybridcompute.MachineListResult{Value: []*armhybridcompute.Machine{sdkMachine("rg2", "b", "Windows")}}},
		},
	}
	inv := NewAzureInventoryWithClients("sub", nil, client, &fakeExtensionsClient{}, logrus.New())

	machines, err := inv.ListMachines(context.Background())
	if err != nil {
		t.Fatalf("ListMachines() error = %v", err)
	}
	if len(machines) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(machines))
	}
	if machines[0].Name != "a" || machines[1].Name != "b" {
		t.Errorf("unexpected machine order: %q, %q", machines[0].Name, machines[1].Name)
	}
	if machines[1].OSType != OSTypeWindows {
		t.Errorf("expected windows OS type, got %q", machines[1].OSType)
	}
}

func TestListMachinesByResourceGroup(t *testing.T) {
	client := &fakeMachinesClient{
		groupPages: map[string][]armhybridcompute.MachinesClientListByResourceGroupResponse{
			"rg1": {{MachineListResult: armhybridcompute.MachineListResult{Value: []*armhybridcompute.Machine{sdkMachine("rg1", "a", "Linux")}}}},
			"rg2": {{MachineListResult: armhybridcompute.MachineListResult{Value: []*armhybridcompute.Machine{sdkMachine("rg2", "b", "Linux"), sdkMachine("rg2", "c", "Linux")}}}},
		},
	}
	inv := NewAzureInventoryWithClients("sub", []string{"rg1", "rg2"}, client, &fakeExtensionsClient{}, logrus.New())

	machines, err := inv.ListMachines(context.Background())
	if err != nil {
		t.Fatalf("ListMachines() error = %v", err)
	}
	if len(machines) != 3 {
		t.Fatalf("expected 3 machines, got %d", len(machines))
	}
	if machines[2].ResourceGroup != "rg2" {
		t.Errorf("expected resource group rg2, got %q", machines[2].ResourceGroup)
	}
}

func TestListMachinesError(t *testing.T) {
	client := &fakeMachinesClient{err: errors.New("forbidden")}
	inv := NewAzureInventoryWithClients("sub", nil, client, &fakeExtensionsClient{}, logrus.New())

	if _, err := inv.ListMachines(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestListExtensions(t *testing.T) {
	extensions := &fakeExtensionsClient{
		pages: map[string][]armhybridcompute.MachineExtensionsClientListResponse{
			"rg1/a": {{MachineExtensionsListResult: armhybridcompute.MachineExtensionsListResult{Value: []*armhybridcompute.MachineExtension{
				{Name: ptr("AMA"), Properties: &armhybridcompute.MachineExtensionProperties{Type: ptr("AzureMonitorLinuxAgent"), Publisher: ptr("Microsoft.Azure.Monitor"), TypeHandlerVersion: ptr("1.29")}},
			}}}},
		},
	}
	inv := NewAzureInventoryWithClients("sub", nil, &fakeMachinesClient{}, extensions, logrus.New())

	got, err := inv.ListExtensions(context.Background(), Machine{Name: "a", ResourceGroup: "rg1", Location: "eastus"})
	if err != nil {
		t.Fatalf("ListExtensions() error = %v", err)
	}
	if len(got) != 1 || got[0].Type != "AzureMonitorLinuxAgent" || got[0].Location != "eastus" {
		t.Errorf("unexpected extensions: %+v", got)
	}

	extensions.err = errors.New("not found")
	if _, err := inv.ListExtensions(context.Background(), Machine{Name: "a", ResourceGroup: "rg1"}); err == nil {
		t.Error("expected error, got nil")
	}
}
