package enums

import "fmt"

// TenantPlan identifies the subscription plan that sets default quotas.
type TenantPlan string

const (
	TenantPlanFree       TenantPlan = "free"
	TenantPlanBasic      TenantPlan = "basic"
	TenantPlanPro        TenantPlan = "pro"
	TenantPlanEnterprise TenantPlan = "enterprise"
)

var validTenantPlans = []TenantPlan{
	TenantPlanFree,
	TenantPlanBasic,
	TenantPlanPro,
	TenantPlanEnterprise,
}

// IsValid reports whether the value is a known TenantPlan.
func (p TenantPlan) IsValid() bool {
	for _, candidate := range validTenantPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseTenantPlan converts raw input into TenantPlan.
func ParseTenantPlan(value string) (TenantPlan, error) {
	for _, candidate := range validTenantPlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tenant plan %q", value)
}

// QuotaResource names a countable resource gated by the plan.
type QuotaResource string

const (
	QuotaProducts       QuotaResource = "products"
	QuotaUsers          QuotaResource = "users"
	QuotaCategories     QuotaResource = "categories"
	QuotaCoupons        QuotaResource = "coupons"
	QuotaOrdersPerMonth QuotaResource = "orders_per_month"
)

var validQuotaResources = []QuotaResource{
	QuotaProducts,
	QuotaUsers,
	QuotaCategories,
	QuotaCoupons,
	QuotaOrdersPerMonth,
}

// IsValid reports whether the value is a known QuotaResource.
func (q QuotaResource) IsValid() bool {
	for _, candidate := range validQuotaResources {
		if candidate == q {
			return true
		}
	}
	return false
}

// MemberRole is the role of a staff account inside a tenant.
type MemberRole string

const (
	MemberRoleOwner   MemberRole = "owner"
	MemberRoleManager MemberRole = "manager"
	MemberRoleStaff   MemberRole = "staff"
	MemberRoleMotoboy MemberRole = "motoboy"
)

// ReceivesStockAlerts reports whether staff with this role are notified on low stock.
func (r MemberRole) ReceivesStockAlerts() bool {
	return r == MemberRoleOwner || r == MemberRoleManager
}
