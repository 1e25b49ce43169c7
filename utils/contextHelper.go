package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/shopstock_backend/appctx"
)

func GetShopId(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyShopId)
	return v
}

func GetBranchId(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, appctx.ContextKeyBranchId)
}

func GetUserId(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyUserId)
	return v
}

func GetUserName(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyUserName)
	return v
}

func GetCorrelationId(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
	return v
}

func IsBranchActor(ctx context.Context) bool {
	v, _ := appctx.GetBool(ctx, appctx.ContextKeyIsBranchActor)
	return v
}

func WithShop(ctx context.Context, shopId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyShopId, shopId)
}

func WithBranch(ctx context.Context, branchId int) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyBranchId, branchId)
}

func WithUser(ctx context.Context, userId string, userName string) context.Context {
	ctx = appctx.Set(ctx, appctx.ContextKeyUserId, userId)
	return appctx.Set(ctx, appctx.ContextKeyUserName, userName)
}

func WithBranchActor(ctx context.Context, isBranchActor bool) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyIsBranchActor, isBranchActor)
}
