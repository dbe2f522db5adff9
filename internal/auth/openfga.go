package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// OpenFGA 对象类型
const (
	fgaTypeUser    = "user"
	fgaTypeContext = "context"

	// 上下文继承关系,child 的能力由 parent 传递
	fgaRelationParent = "parent"
)

func fgaObject(objectType, id string) string {
	return objectType + ":" + id
}

// contextObject 上下文在 OpenFGA 中的对象名
func contextObject(contextID int64) string {
	return fgaObject(fgaTypeContext, strconv.FormatInt(contextID, 10))
}

// OpenFGAClient OpenFGA 客户端,用户能力以 user -> capability -> context 元组存储
type OpenFGAClient struct {
	client  *client.OpenFgaClient
	storeID string
	modelID string
}

// NewOpenFGAClient 创建 OpenFGA 客户端
func NewOpenFGAClient(apiURL string, storeID string, modelID string) (*OpenFGAClient, error) {
	fgaClient, err := client.NewSdkClient(&client.ClientConfiguration{
		ApiUrl:               apiURL,
		StoreId:              storeID,
		AuthorizationModelId: modelID,
		Credentials: &credentials.Credentials{
			Method: credentials.CredentialsMethodNone,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}
	return &OpenFGAClient{client: fgaClient, storeID: storeID, modelID: modelID}, nil
}

// NewOpenFGAClientWithRetry 连接 OpenFGA,不可达时按指数退避重试
func NewOpenFGAClientWithRetry(apiURL string, storeID string, modelID string, maxRetries int, retryInterval time.Duration) (*OpenFGAClient, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		c, err := NewOpenFGAClient(apiURL, storeID, modelID)
		if err == nil && c.CheckHealth(context.Background()) {
			return c, nil
		}
		if err == nil {
			err = fmt.Errorf("OpenFGA at %s is not reachable", apiURL)
		}
		lastErr = err

		if attempt < maxRetries {
			time.Sleep(retryInterval)
			retryInterval *= 2
		}
	}
	return nil, fmt.Errorf("failed to create OpenFGA client after %d retries: %w", maxRetries, lastErr)
}

// CheckPermission 检查 user 对 object 是否有 relation
func (c *OpenFGAClient) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	resp, err := c.client.Check(ctx).Body(client.ClientCheckRequest{
		User:     fgaObject(fgaTypeUser, userID),
		Relation: relation,
		Object:   fgaObject(objectType, objectID),
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return resp.GetAllowed(), nil
}

// SetRelation 授予用户对象关系
func (c *OpenFGAClient) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	tuple := client.ClientTupleKey{
		User:     fgaObject(fgaTypeUser, userID),
		Relation: relation,
		Object:   fgaObject(objectType, objectID),
	}
	if err := c.write(ctx, client.ClientWriteRequest{Writes: []client.ClientTupleKey{tuple}}); err != nil {
		return fmt.Errorf("failed to set relation: %w", err)
	}
	return nil
}

// DeleteRelation 撤销用户对象关系
func (c *OpenFGAClient) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	tuple := client.ClientTupleKeyWithoutCondition{
		User:     fgaObject(fgaTypeUser, userID),
		Relation: relation,
		Object:   fgaObject(objectType, objectID),
	}
	if err := c.write(ctx, client.ClientWriteRequest{Deletes: []client.ClientTupleKeyWithoutCondition{tuple}}); err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}
	return nil
}

// LinkContext 新建的课程分类上下文挂到父上下文下,使能力沿层级继承
func (c *OpenFGAClient) LinkContext(ctx context.Context, childID, parentID int64) error {
	tuple := client.ClientTupleKey{
		User:     contextObject(parentID),
		Relation: fgaRelationParent,
		Object:   contextObject(childID),
	}
	if err := c.write(ctx, client.ClientWriteRequest{Writes: []client.ClientTupleKey{tuple}}); err != nil {
		return fmt.Errorf("failed to link context %d to %d: %w", childID, parentID, err)
	}
	return nil
}

func (c *OpenFGAClient) write(ctx context.Context, body client.ClientWriteRequest) error {
	_, err := c.client.Write(ctx).Body(body).Execute()
	return err
}

// CheckHealth 能读取元组即视为可用
func (c *OpenFGAClient) CheckHealth(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.Read(ctx).Execute()
	return err == nil
}
