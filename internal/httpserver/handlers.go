package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

type handlers struct {
	svc CustomerService
}

type createCustomerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// addressesRequest разбирает адреса через domain.Address, поэтому невалидный адрес отклоняется на входе.
type addressesRequest struct {
	ShippingAddress *domain.Address `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress"`
}

type addItemRequest struct {
	Product  string          `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type orderView struct {
	ID              string             `json:"id"`
	OrderDate       time.Time          `json:"orderDate"`
	ShippingAddress *domain.Address    `json:"shippingAddress,omitempty"`
	BillingAddress  *domain.Address    `json:"billingAddress,omitempty"`
	Items           []domain.OrderItem `json:"items"`
	TotalAmount     string             `json:"totalAmount"`
}

type customerView struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name"`
	DefaultShippingAddress *domain.Address `json:"defaultShippingAddress,omitempty"`
	DefaultBillingAddress  *domain.Address `json:"defaultBillingAddress,omitempty"`
	OutstandingOrders      int             `json:"outstandingOrders"`
	Orders                 []orderView     `json:"orders"`
}

func newOrderView(o *domain.Order) orderView {
	items := o.Items()
	if items == nil {
		items = []domain.OrderItem{}
	}
	return orderView{
		ID:              o.ID(),
		OrderDate:       o.OrderDate(),
		ShippingAddress: o.ShippingAddress(),
		BillingAddress:  o.BillingAddress(),
		Items:           items,
		TotalAmount:     o.TotalAmount().StringFixed(2),
	}
}

func newCustomerView(c *domain.Customer) customerView {
	return customerView{
		ID:                     c.ID(),
		Name:                   c.Name(),
		DefaultShippingAddress: c.DefaultShippingAddress(),
		DefaultBillingAddress:  c.DefaultBillingAddress(),
		OutstandingOrders:      c.OutstandingOrdersCount(),
		Orders: lo.Map(c.Orders(), func(o *domain.Order, _ int) orderView {
			return newOrderView(o)
		}),
	}
}

func (h *handlers) createCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	customer, err := h.svc.CreateCustomer(c.Request.Context(), req.ID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/customers/"+customer.ID())
	c.JSON(http.StatusCreated, newCustomerView(customer))
}

func (h *handlers) getCustomer(c *gin.Context) {
	customer, err := h.svc.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCustomerView(customer))
}

func (h *handlers) placeOrder(c *gin.Context) {
	var req addressesRequest
	// пустое тело означает заказ с адресами по умолчанию
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, err := h.svc.PlaceOrder(c.Request.Context(), c.Param("id"), req.ShippingAddress, req.BillingAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderView(order))
}

func (h *handlers) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := domain.NewOrderItem(req.Product, req.Quantity, req.Price)
	if err != nil {
		writeError(c, err)
		return
	}

	order, err := h.svc.AddItemToOrder(c.Request.Context(), c.Param("id"), c.Param("orderId"), item)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderView(order))
}

func (h *handlers) updateAddresses(c *gin.Context) {
	var req addressesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	customer, err := h.svc.UpdateDefaultAddresses(c.Request.Context(), c.Param("id"), req.ShippingAddress, req.BillingAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCustomerView(customer))
}
