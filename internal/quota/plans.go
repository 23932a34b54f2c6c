package quota

import "github.com/angelmondragon/comanda-backend/pkg/enums"

func limit(n int) *int { return &n }

// planLimits holds the built-in ceilings per plan. A nil entry means unlimited.
var planLimits = map[enums.TenantPlan]map[enums.QuotaResource]*int{
	enums.TenantPlanFree: {
		enums.QuotaProducts:       limit(30),
		enums.QuotaUsers:          limit(2),
		enums.QuotaCategories:     limit(10),
		enums.QuotaCoupons:        limit(3),
		enums.QuotaOrdersPerMonth: limit(300),
	},
	enums.TenantPlanBasic: {
		enums.QuotaProducts:       limit(150),
		enums.QuotaUsers:          limit(5),
		enums.QuotaCategories:     limit(30),
		enums.QuotaCoupons:        limit(20),
		enums.QuotaOrdersPerMonth: limit(2000),
	},
	enums.TenantPlanPro: {
		enums.QuotaProducts:       limit(1000),
		enums.QuotaUsers:          limit(20),
		enums.QuotaCategories:     limit(100),
		enums.QuotaCoupons:        limit(100),
		enums.QuotaOrdersPerMonth: nil,
	},
	enums.TenantPlanEnterprise: {},
}

// PlanDefault returns the built-in limit for resource under plan, nil when unlimited.
func PlanDefault(plan enums.TenantPlan, resource enums.QuotaResource) *int {
	limits, ok := planLimits[plan]
	if !ok {
		limits = planLimits[enums.TenantPlanFree]
	}
	if v := limits[resource]; v != nil {
		copied := *v
		return &copied
	}
	return nil
}
